package sctp

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/protocols/ip"
)

// Chunk types
const (
	chunkData             = 0
	chunkInit             = 1
	chunkInitAck          = 2
	chunkSack             = 3
	chunkHeartbeat        = 4
	chunkHeartbeatAck     = 5
	chunkAbort            = 6
	chunkShutdown         = 7
	chunkShutdownAck      = 8
	chunkError            = 9
	chunkCookieEcho       = 10
	chunkCookieAck        = 11
	chunkEcne             = 12
	chunkCwr              = 13
	chunkShutdownComplete = 14
	chunkForwardTSN       = 192
)

var chunkNames = map[uint64]string{
	chunkData:             "DATA",
	chunkInit:             "INIT",
	chunkInitAck:          "INIT_ACK",
	chunkSack:             "SACK",
	chunkHeartbeat:        "HEARTBEAT",
	chunkHeartbeatAck:     "HEARTBEAT_ACK",
	chunkAbort:            "ABORT",
	chunkShutdown:         "SHUTDOWN",
	chunkShutdownAck:      "SHUTDOWN_ACK",
	chunkError:            "ERROR",
	chunkCookieEcho:       "COOKIE_ECHO",
	chunkCookieAck:        "COOKIE_ACK",
	chunkEcne:             "ECNE",
	chunkCwr:              "CWR",
	chunkShutdownComplete: "SHUTDOWN_COMPLETE",
	chunkForwardTSN:       "FORWARD_TSN",
}

// Parameter types
const (
	paramHeartbeatInfo       = 1
	paramIPv4                = 5
	paramIPv6                = 6
	paramStateCookie         = 7
	paramUnrecognized        = 8
	paramCookiePreservative  = 9
	paramHostname            = 11
	paramSupportedAddrTypes  = 12
	paramECN                 = 0x8000
	paramForwardTSNSupported = 0xc000
	paramAdaptationLayer     = 0xc006
)

var paramNames = map[uint64]string{
	paramHeartbeatInfo:       "Heartbeat info",
	paramIPv4:                "IPv4 address",
	paramIPv6:                "IPv6 address",
	paramStateCookie:         "State cookie",
	paramUnrecognized:        "Unrecognized parameters",
	paramCookiePreservative:  "Cookie preservative",
	paramHostname:            "Hostname",
	paramSupportedAddrTypes:  "Supported address types",
	paramECN:                 "ECN",
	paramForwardTSNSupported: "Forward TSN supported",
	paramAdaptationLayer:     "Adaptation Layer Indication",
}

// Error cause codes
const (
	causeInvalidStreamID         = 1
	causeMissingMandatoryParams  = 2
	causeStaleCookie             = 3
	causeOutOfResource           = 4
	causeUnresolvableAddress     = 5
	causeUnrecognizedChunkType   = 6
	causeInvalidMandatoryParam   = 7
	causeUnrecognizedParams      = 8
	causeNoUserData              = 9
	causeCookieWhileShuttingDown = 10
	causeRestartWithNewAddresses = 11
	causeUserInitiatedAbort      = 12
	causeProtocolViolation       = 13
)

var causeNames = map[uint64]string{
	causeInvalidStreamID:         "Invalid stream identifier",
	causeMissingMandatoryParams:  "Missing mandatory parameter",
	causeStaleCookie:             "Stale cookie error",
	causeOutOfResource:           "Out of resource",
	causeUnresolvableAddress:     "Unresolvable address",
	causeUnrecognizedChunkType:   "Unrecognized chunk type",
	causeInvalidMandatoryParam:   "Invalid mandatory parameter",
	causeUnrecognizedParams:      "Unrecognized parameters",
	causeNoUserData:              "No user data",
	causeCookieWhileShuttingDown: "Cookie received while shutting down",
	causeRestartWithNewAddresses: "Restart of an association with new addresses",
	causeUserInitiatedAbort:      "User initiated ABORT",
	causeProtocolViolation:       "Protocol violation",
}

var payloadProtocols = map[uint64]string{
	0:  "not specified",
	1:  "IUA",
	2:  "M2UA",
	3:  "M3UA",
	4:  "SUA",
	5:  "M2PA",
	6:  "V5UA",
	7:  "H.248",
	46: "Diameter",
	47: "Diameter DTLS",
	51: "WebRTC String",
	53: "WebRTC Binary",
	60: "NGAP",
	62: "XwAP",
}

var addressTypes = map[uint64]string{
	paramIPv4:     "IPv4 address",
	paramIPv6:     "IPv6 address",
	paramHostname: "Hostname address",
}

var (
	// Common header
	hfSrcPort  = &core.FieldSpec{Name: "Source port", Filter: "sctp.srcport", Kind: core.KindUint}
	hfDstPort  = &core.FieldSpec{Name: "Destination port", Filter: "sctp.dstport", Kind: core.KindUint}
	hfVTag     = &core.FieldSpec{Name: "Verification tag", Filter: "sctp.verification_tag", Kind: core.KindUint, Base: core.BaseHex}
	hfChecksum = &core.FieldSpec{Name: "Checksum", Filter: "sctp.checksum", Kind: core.KindUint, Base: core.BaseHex}
	hfCkStatus = &core.FieldSpec{Name: "Checksum Status", Filter: "sctp.checksum_status", Kind: core.KindUint, Strings: ip.ChecksumStatus()}
	hfCkAlg    = &core.FieldSpec{Name: "Checksum algorithm", Filter: "sctp.checksum_algorithm", Kind: core.KindString}

	// Chunk header
	hfChunkType    = &core.FieldSpec{Name: "Chunk type", Filter: "sctp.chunk_type", Kind: core.KindUint, Strings: chunkNames}
	hfChunkBit1    = &core.FieldSpec{Name: "Bit", Filter: "sctp.chunk_bit_1", Kind: core.KindBool, Width: 8, Mask: 0x80}
	hfChunkBit2    = &core.FieldSpec{Name: "Bit", Filter: "sctp.chunk_bit_2", Kind: core.KindBool, Width: 8, Mask: 0x40}
	hfChunkFlags   = &core.FieldSpec{Name: "Chunk flags", Filter: "sctp.chunk_flags", Kind: core.KindUint, Base: core.BaseHex}
	hfChunkLength  = &core.FieldSpec{Name: "Chunk length", Filter: "sctp.chunk_length", Kind: core.KindUint}
	hfChunkPadding = &core.FieldSpec{Name: "Chunk padding", Filter: "sctp.chunk_padding", Kind: core.KindBytes}
	hfChunkValue   = &core.FieldSpec{Name: "Chunk value", Filter: "sctp.chunk_value", Kind: core.KindBytes}

	// DATA
	hfDataEBit   = &core.FieldSpec{Name: "E-Bit", Filter: "sctp.data_e_bit", Kind: core.KindBool, Width: 8, Mask: 0x01}
	hfDataBBit   = &core.FieldSpec{Name: "B-Bit", Filter: "sctp.data_b_bit", Kind: core.KindBool, Width: 8, Mask: 0x02}
	hfDataUBit   = &core.FieldSpec{Name: "U-Bit", Filter: "sctp.data_u_bit", Kind: core.KindBool, Width: 8, Mask: 0x04}
	hfDataIBit   = &core.FieldSpec{Name: "I-Bit", Filter: "sctp.data_i_bit", Kind: core.KindBool, Width: 8, Mask: 0x08}
	hfDataTSN    = &core.FieldSpec{Name: "Transmission sequence number", Filter: "sctp.data_tsn", Kind: core.KindUint}
	hfDataSID    = &core.FieldSpec{Name: "Stream identifier", Filter: "sctp.data_sid", Kind: core.KindUint, Base: core.BaseHex}
	hfDataSSN    = &core.FieldSpec{Name: "Stream sequence number", Filter: "sctp.data_ssn", Kind: core.KindUint}
	hfDataPPI    = &core.FieldSpec{Name: "Payload protocol identifier", Filter: "sctp.data_payload_proto_id", Kind: core.KindUint, Strings: payloadProtocols}
	hfDataLength = &core.FieldSpec{Name: "Payload length", Filter: "sctp.data_payload_length", Kind: core.KindUint}

	// INIT / INIT_ACK
	hfInitTag       = &core.FieldSpec{Name: "Initiate tag", Filter: "sctp.init_initiate_tag", Kind: core.KindUint, Base: core.BaseHex}
	hfInitCredit    = &core.FieldSpec{Name: "Advertised receiver window credit (a_rwnd)", Filter: "sctp.init_credit", Kind: core.KindUint}
	hfInitOutbound  = &core.FieldSpec{Name: "Number of outbound streams", Filter: "sctp.init_nr_out_streams", Kind: core.KindUint}
	hfInitInbound   = &core.FieldSpec{Name: "Number of inbound streams", Filter: "sctp.init_nr_in_streams", Kind: core.KindUint}
	hfInitTSN       = &core.FieldSpec{Name: "Initial TSN", Filter: "sctp.init_initial_tsn", Kind: core.KindUint}
	hfInitAckTag    = &core.FieldSpec{Name: "Initiate tag", Filter: "sctp.initack_initiate_tag", Kind: core.KindUint, Base: core.BaseHex}
	hfInitAckCredit = &core.FieldSpec{Name: "Advertised receiver window credit (a_rwnd)", Filter: "sctp.initack_credit", Kind: core.KindUint}
	hfInitAckOut    = &core.FieldSpec{Name: "Number of outbound streams", Filter: "sctp.initack_nr_out_streams", Kind: core.KindUint}
	hfInitAckIn     = &core.FieldSpec{Name: "Number of inbound streams", Filter: "sctp.initack_nr_in_streams", Kind: core.KindUint}
	hfInitAckTSN    = &core.FieldSpec{Name: "Initial TSN", Filter: "sctp.initack_initial_tsn", Kind: core.KindUint}

	// SACK
	hfSackCumTSN    = &core.FieldSpec{Name: "Cumulative TSN ACK", Filter: "sctp.sack_cumulative_tsn_ack", Kind: core.KindUint}
	hfSackCredit    = &core.FieldSpec{Name: "Advertised receiver window credit (a_rwnd)", Filter: "sctp.sack_a_rwnd", Kind: core.KindUint}
	hfSackGaps      = &core.FieldSpec{Name: "Number of gap acknowledgement blocks", Filter: "sctp.sack_number_of_gap_blocks", Kind: core.KindUint}
	hfSackDups      = &core.FieldSpec{Name: "Number of duplicated TSNs", Filter: "sctp.sack_number_of_duplicated_tsns", Kind: core.KindUint}
	hfSackGapStart  = &core.FieldSpec{Name: "Start", Filter: "sctp.sack_gap_block_start", Kind: core.KindUint}
	hfSackGapEnd    = &core.FieldSpec{Name: "End", Filter: "sctp.sack_gap_block_end", Kind: core.KindUint}
	hfSackDuplicate = &core.FieldSpec{Name: "Duplicate TSN", Filter: "sctp.sack_duplicate_tsn", Kind: core.KindUint}

	// Other chunks
	hfAbortTBit      = &core.FieldSpec{Name: "T-Bit", Filter: "sctp.abort_t_bit", Kind: core.KindBool, Width: 8, Mask: 0x01}
	hfShutdownCumTSN = &core.FieldSpec{Name: "Cumulative TSN Ack", Filter: "sctp.shutdown_cumulative_tsn_ack", Kind: core.KindUint}
	hfCookie         = &core.FieldSpec{Name: "Cookie", Filter: "sctp.cookie", Kind: core.KindBytes}
	hfEcneLowestTSN  = &core.FieldSpec{Name: "Lowest TSN", Filter: "sctp.ecne_lowest_tsn", Kind: core.KindUint}
	hfCwrLowestTSN   = &core.FieldSpec{Name: "Lowest TSN", Filter: "sctp.cwr_lowest_tsn", Kind: core.KindUint}
	hfShutdownTBit   = &core.FieldSpec{Name: "T-Bit", Filter: "sctp.shutdown_complete_t_bit", Kind: core.KindBool, Width: 8, Mask: 0x01}
	hfForwardTSN     = &core.FieldSpec{Name: "New cumulative TSN", Filter: "sctp.forward_tsn_tsn", Kind: core.KindUint}
	hfForwardTSNSID  = &core.FieldSpec{Name: "Stream identifier", Filter: "sctp.forward_tsn_sid", Kind: core.KindUint}
	hfForwardTSNSSN  = &core.FieldSpec{Name: "Stream sequence number", Filter: "sctp.forward_tsn_ssn", Kind: core.KindUint}

	// Parameters
	hfParamType     = &core.FieldSpec{Name: "Parameter type", Filter: "sctp.parameter_type", Kind: core.KindUint, Base: core.BaseHex, Strings: paramNames}
	hfParamBit1     = &core.FieldSpec{Name: "Bit", Filter: "sctp.parameter_bit_1", Kind: core.KindBool, Width: 16, Mask: 0x8000}
	hfParamBit2     = &core.FieldSpec{Name: "Bit", Filter: "sctp.parameter_bit_2", Kind: core.KindBool, Width: 16, Mask: 0x4000}
	hfParamLength   = &core.FieldSpec{Name: "Parameter length", Filter: "sctp.parameter_length", Kind: core.KindUint}
	hfParamPadding  = &core.FieldSpec{Name: "Parameter padding", Filter: "sctp.parameter_padding", Kind: core.KindBytes}
	hfParamValue    = &core.FieldSpec{Name: "Parameter value", Filter: "sctp.parameter_value", Kind: core.KindBytes}
	hfHeartbeatInfo = &core.FieldSpec{Name: "Heartbeat information", Filter: "sctp.parameter_heartbeat_information", Kind: core.KindBytes}
	hfIPv4Addr      = &core.FieldSpec{Name: "IP Version 4 address", Filter: "sctp.parameter_ipv4_address", Kind: core.KindIPv4}
	hfIPv6Addr      = &core.FieldSpec{Name: "IP Version 6 address", Filter: "sctp.parameter_ipv6_address", Kind: core.KindIPv6}
	hfStateCookie   = &core.FieldSpec{Name: "State cookie", Filter: "sctp.parameter_state_cookie", Kind: core.KindBytes}
	hfCookieInc     = &core.FieldSpec{Name: "Suggested cookie life-span increment (msec)", Filter: "sctp.parameter_cookie_preservative_incr", Kind: core.KindUint}
	hfHostname      = &core.FieldSpec{Name: "Hostname", Filter: "sctp.parameter_hostname", Kind: core.KindString}
	hfAddrType      = &core.FieldSpec{Name: "Supported address type", Filter: "sctp.parameter_supported_address_type", Kind: core.KindUint, Strings: addressTypes}
	hfAdaptation    = &core.FieldSpec{Name: "Indication", Filter: "sctp.parameter_adaptation_layer_indication", Kind: core.KindUint, Base: core.BaseHex}

	// Error causes
	hfCauseCode       = &core.FieldSpec{Name: "Cause code", Filter: "sctp.cause_code", Kind: core.KindUint, Base: core.BaseHex, Strings: causeNames}
	hfCauseLength     = &core.FieldSpec{Name: "Cause length", Filter: "sctp.cause_length", Kind: core.KindUint}
	hfCausePadding    = &core.FieldSpec{Name: "Cause padding", Filter: "sctp.cause_padding", Kind: core.KindBytes}
	hfCauseInfo       = &core.FieldSpec{Name: "Cause information", Filter: "sctp.cause_information", Kind: core.KindBytes}
	hfCauseStreamID   = &core.FieldSpec{Name: "Stream identifier", Filter: "sctp.cause_stream_identifier", Kind: core.KindUint}
	hfCauseReserved   = &core.FieldSpec{Name: "Reserved", Filter: "sctp.cause_reserved", Kind: core.KindUint, Base: core.BaseHex}
	hfCauseMissingNum = &core.FieldSpec{Name: "Number of missing parameters", Filter: "sctp.cause_nr_of_missing_parameters", Kind: core.KindUint}
	hfCauseMissing    = &core.FieldSpec{Name: "Missing parameter type", Filter: "sctp.cause_missing_parameter_type", Kind: core.KindUint, Base: core.BaseHex, Strings: paramNames}
	hfCauseStaleness  = &core.FieldSpec{Name: "Measure of staleness in usec", Filter: "sctp.cause_measure_of_staleness", Kind: core.KindUint}
	hfCauseTSN        = &core.FieldSpec{Name: "TSN", Filter: "sctp.cause_tsn", Kind: core.KindUint}

	fields = []*core.FieldSpec{
		hfSrcPort, hfDstPort, hfVTag, hfChecksum, hfCkStatus, hfCkAlg,
		hfChunkType, hfChunkBit1, hfChunkBit2, hfChunkFlags, hfChunkLength, hfChunkPadding, hfChunkValue,
		hfDataEBit, hfDataBBit, hfDataUBit, hfDataIBit, hfDataTSN, hfDataSID, hfDataSSN, hfDataPPI, hfDataLength,
		hfInitTag, hfInitCredit, hfInitOutbound, hfInitInbound, hfInitTSN,
		hfInitAckTag, hfInitAckCredit, hfInitAckOut, hfInitAckIn, hfInitAckTSN,
		hfSackCumTSN, hfSackCredit, hfSackGaps, hfSackDups, hfSackGapStart, hfSackGapEnd, hfSackDuplicate,
		hfAbortTBit, hfShutdownCumTSN, hfCookie, hfEcneLowestTSN, hfCwrLowestTSN, hfShutdownTBit,
		hfForwardTSN, hfForwardTSNSID, hfForwardTSNSSN,
		hfParamType, hfParamBit1, hfParamBit2, hfParamLength, hfParamPadding, hfParamValue,
		hfHeartbeatInfo, hfIPv4Addr, hfIPv6Addr, hfStateCookie, hfCookieInc, hfHostname, hfAddrType, hfAdaptation,
		hfCauseCode, hfCauseLength, hfCausePadding, hfCauseInfo, hfCauseStreamID, hfCauseReserved,
		hfCauseMissingNum, hfCauseMissing, hfCauseStaleness, hfCauseTSN,
	}
)
