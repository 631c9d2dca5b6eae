package isakmp

import "firestige.xyz/strix/internal/core"

// Payload types
const (
	payloadNone      = 0
	payloadSA        = 1
	payloadProposal  = 2
	payloadTransform = 3
	payloadKE        = 4
	payloadID        = 5
	payloadCert      = 6
	payloadCR        = 7
	payloadHash      = 8
	payloadSig       = 9
	payloadNonce     = 10
	payloadN         = 11
	payloadD         = 12
	payloadVID       = 13
)

var payloadNames = map[uint64]string{
	payloadNone:      "NONE / No Next Payload",
	payloadSA:        "Security Association",
	payloadProposal:  "Proposal",
	payloadTransform: "Transform",
	payloadKE:        "Key Exchange",
	payloadID:        "Identification",
	payloadCert:      "Certificate",
	payloadCR:        "Certificate Request",
	payloadHash:      "Hash",
	payloadSig:       "Signature",
	payloadNonce:     "Nonce",
	payloadN:         "Notification",
	payloadD:         "Delete",
	payloadVID:       "Vendor ID",
	20:               "NAT-D (RFC 3947)",
	21:               "NAT-OA (RFC 3947)",
}

var exchangeTypes = map[uint64]string{
	0:  "NONE",
	1:  "Base",
	2:  "Identity Protection (Main Mode)",
	3:  "Authentication Only",
	4:  "Aggressive",
	5:  "Informational",
	6:  "Transaction (Config Mode)",
	32: "Quick Mode",
	33: "New Group Mode",
}

var protocolIDs = map[uint64]string{
	0: "RESERVED",
	1: "ISAKMP",
	2: "IPSEC_AH",
	3: "IPSEC_ESP",
	4: "IPCOMP",
}

var idTypes = map[uint64]string{
	1:  "IPV4_ADDR",
	2:  "FQDN",
	3:  "USER_FQDN",
	4:  "IPV4_ADDR_SUBNET",
	5:  "IPV6_ADDR",
	6:  "IPV6_ADDR_SUBNET",
	7:  "IPV4_ADDR_RANGE",
	8:  "IPV6_ADDR_RANGE",
	9:  "DER_ASN1_DN",
	10: "DER_ASN1_GN",
	11: "KEY_ID",
}

var certEncodings = map[uint64]string{
	0:  "NONE",
	1:  "PKCS #7 wrapped X.509 certificate",
	2:  "PGP Certificate",
	3:  "DNS Signed Key",
	4:  "X.509 Certificate - Signature",
	5:  "X.509 Certificate - Key Exchange",
	6:  "Kerberos Tokens",
	7:  "Certificate Revocation List (CRL)",
	8:  "Authority Revocation List (ARL)",
	9:  "SPKI Certificate",
	10: "X.509 Certificate - Attribute",
}

var notifyTypes = map[uint64]string{
	1:     "INVALID-PAYLOAD-TYPE",
	2:     "DOI-NOT-SUPPORTED",
	3:     "SITUATION-NOT-SUPPORTED",
	4:     "INVALID-COOKIE",
	5:     "INVALID-MAJOR-VERSION",
	6:     "INVALID-MINOR-VERSION",
	7:     "INVALID-EXCHANGE-TYPE",
	8:     "INVALID-FLAGS",
	9:     "INVALID-MESSAGE-ID",
	10:    "INVALID-PROTOCOL-ID",
	11:    "INVALID-SPI",
	12:    "INVALID-TRANSFORM-ID",
	13:    "ATTRIBUTES-NOT-SUPPORTED",
	14:    "NO-PROPOSAL-CHOSEN",
	15:    "BAD-PROPOSAL-SYNTAX",
	16:    "PAYLOAD-MALFORMED",
	17:    "INVALID-KEY-INFORMATION",
	18:    "INVALID-ID-INFORMATION",
	19:    "INVALID-CERT-ENCODING",
	20:    "INVALID-CERTIFICATE",
	21:    "CERT-TYPE-UNSUPPORTED",
	22:    "INVALID-CERT-AUTHORITY",
	23:    "INVALID-HASH-INFORMATION",
	24:    "AUTHENTICATION-FAILED",
	25:    "INVALID-SIGNATURE",
	26:    "ADDRESS-NOTIFICATION",
	27:    "NOTIFY-SA-LIFETIME",
	28:    "CERTIFICATE-UNAVAILABLE",
	29:    "UNSUPPORTED-EXCHANGE-TYPE",
	30:    "UNEQUAL-PAYLOAD-LENGTHS",
	24576: "RESPONDER-LIFETIME",
	24577: "REPLAY-STATUS",
	24578: "INITIAL-CONTACT",
	36136: "R-U-THERE",
	36137: "R-U-THERE-ACK",
}

// IPsec DOI SA attribute types.
var attributeTypes = map[uint64]string{
	1:  "Encryption-Algorithm",
	2:  "Hash-Algorithm",
	3:  "Authentication-Method",
	4:  "Group-Description",
	5:  "Group-Type",
	6:  "Group-Prime/Irreducible-Polynomial",
	7:  "Group-Generator-One",
	8:  "Group-Generator-Two",
	9:  "Group-Curve-A",
	10: "Group-Curve-B",
	11: "Life-Type",
	12: "Life-Duration",
	13: "PRF",
	14: "Key-Length",
	15: "Field-Size",
	16: "Group-Order",
}

var (
	// Header
	hfICookie     = &core.FieldSpec{Name: "Initiator SPI", Filter: "isakmp.ispi", Kind: core.KindBytes}
	hfRCookie     = &core.FieldSpec{Name: "Responder SPI", Filter: "isakmp.rspi", Kind: core.KindBytes}
	hfNextPayload = &core.FieldSpec{Name: "Next payload", Filter: "isakmp.nextpayload", Kind: core.KindUint, Strings: payloadNames}
	hfVersion     = &core.FieldSpec{Name: "Version", Filter: "isakmp.version", Kind: core.KindUint, Base: core.BaseHex}
	hfMjVer       = &core.FieldSpec{Name: "Major version", Filter: "isakmp.mjver", Kind: core.KindUint, Width: 8, Mask: 0xf0}
	hfMnVer       = &core.FieldSpec{Name: "Minor version", Filter: "isakmp.mnver", Kind: core.KindUint, Width: 8, Mask: 0x0f}
	hfExchType    = &core.FieldSpec{Name: "Exchange type", Filter: "isakmp.exchtype", Kind: core.KindUint, Strings: exchangeTypes}
	hfFlags       = &core.FieldSpec{Name: "Flags", Filter: "isakmp.flags", Kind: core.KindUint, Base: core.BaseHex}
	hfFlagEnc     = &core.FieldSpec{Name: "Encryption", Filter: "isakmp.flag_e", Kind: core.KindBool, Width: 8, Mask: 0x01}
	hfFlagCommit  = &core.FieldSpec{Name: "Commit", Filter: "isakmp.flag_c", Kind: core.KindBool, Width: 8, Mask: 0x02}
	hfFlagAuth    = &core.FieldSpec{Name: "Authentication", Filter: "isakmp.flag_a", Kind: core.KindBool, Width: 8, Mask: 0x04}
	hfMessageID   = &core.FieldSpec{Name: "Message ID", Filter: "isakmp.messageid", Kind: core.KindUint, Base: core.BaseHex}
	hfLength      = &core.FieldSpec{Name: "Length", Filter: "isakmp.length", Kind: core.KindUint}
	hfEncData     = &core.FieldSpec{Name: "Encrypted Data", Filter: "isakmp.enc_data", Kind: core.KindBytes}
	hfNonESP      = &core.FieldSpec{Name: "Non-ESP Marker", Filter: "udpencap.non_esp_marker", Kind: core.KindBytes}

	// Generic payload header
	hfPayloadNext   = &core.FieldSpec{Name: "Next payload", Filter: "isakmp.payload.next", Kind: core.KindUint, Strings: payloadNames}
	hfPayloadRsvd   = &core.FieldSpec{Name: "Reserved", Filter: "isakmp.payload.reserved", Kind: core.KindUint, Base: core.BaseHex}
	hfPayloadLength = &core.FieldSpec{Name: "Payload length", Filter: "isakmp.payloadlength", Kind: core.KindUint}
	hfPayloadData   = &core.FieldSpec{Name: "Payload data", Filter: "isakmp.payloaddata", Kind: core.KindBytes}

	// SA
	hfDOI       = &core.FieldSpec{Name: "Domain of interpretation", Filter: "isakmp.doi", Kind: core.KindUint, Strings: map[uint64]string{1: "IPSEC"}}
	hfSituation = &core.FieldSpec{Name: "Situation", Filter: "isakmp.sa.situation", Kind: core.KindUint, Base: core.BaseHex}

	// Proposal
	hfPropNumber     = &core.FieldSpec{Name: "Proposal number", Filter: "isakmp.prop.number", Kind: core.KindUint}
	hfProtoID        = &core.FieldSpec{Name: "Protocol ID", Filter: "isakmp.protoid", Kind: core.KindUint, Strings: protocolIDs}
	hfSPISize        = &core.FieldSpec{Name: "SPI Size", Filter: "isakmp.spisize", Kind: core.KindUint}
	hfPropTransforms = &core.FieldSpec{Name: "Proposal transforms", Filter: "isakmp.prop.transforms", Kind: core.KindUint}
	hfSPI            = &core.FieldSpec{Name: "SPI", Filter: "isakmp.spi", Kind: core.KindBytes}

	// Transform
	hfTransNumber = &core.FieldSpec{Name: "Transform number", Filter: "isakmp.trans.number", Kind: core.KindUint}
	hfTransID     = &core.FieldSpec{Name: "Transform ID", Filter: "isakmp.trans.id", Kind: core.KindUint}
	hfTransRsvd   = &core.FieldSpec{Name: "Reserved", Filter: "isakmp.trans.reserved", Kind: core.KindUint, Base: core.BaseHex}

	// Attributes
	hfAttrFormat = &core.FieldSpec{Name: "Attribute format", Filter: "isakmp.tf.attr.format", Kind: core.KindBool, Width: 16, Mask: 0x8000}
	hfAttrType   = &core.FieldSpec{Name: "Type", Filter: "isakmp.tf.attr.type", Kind: core.KindUint, Width: 16, Mask: 0x7fff, Strings: attributeTypes}
	hfAttrLength = &core.FieldSpec{Name: "Length", Filter: "isakmp.tf.attr.length", Kind: core.KindUint}
	hfAttrValue  = &core.FieldSpec{Name: "Value", Filter: "isakmp.tf.attr.value", Kind: core.KindUint}
	hfAttrBytes  = &core.FieldSpec{Name: "Value", Filter: "isakmp.tf.attr.value_data", Kind: core.KindBytes}

	// KE, hash, signature, nonce, vendor id
	hfKeyExch   = &core.FieldSpec{Name: "Key Exchange Data", Filter: "isakmp.key_exchange.data", Kind: core.KindBytes}
	hfHash      = &core.FieldSpec{Name: "Hash DATA", Filter: "isakmp.hash", Kind: core.KindBytes}
	hfSignature = &core.FieldSpec{Name: "Signature DATA", Filter: "isakmp.sig", Kind: core.KindBytes}
	hfNonce     = &core.FieldSpec{Name: "Nonce DATA", Filter: "isakmp.nonce", Kind: core.KindBytes}
	hfVendorID  = &core.FieldSpec{Name: "Vendor ID", Filter: "isakmp.vendorid", Kind: core.KindBytes}

	// ID
	hfIDType     = &core.FieldSpec{Name: "ID type", Filter: "isakmp.id.type", Kind: core.KindUint, Strings: idTypes}
	hfIDProtocol = &core.FieldSpec{Name: "Protocol ID", Filter: "isakmp.id.protoid", Kind: core.KindUint}
	hfIDPort     = &core.FieldSpec{Name: "Port", Filter: "isakmp.id.port", Kind: core.KindUint}
	hfIDIPv4     = &core.FieldSpec{Name: "Identification Data", Filter: "isakmp.id.ipv4_addr", Kind: core.KindIPv4}
	hfIDIPv6     = &core.FieldSpec{Name: "Identification Data", Filter: "isakmp.id.ipv6_addr", Kind: core.KindIPv6}
	hfIDName     = &core.FieldSpec{Name: "Identification Data", Filter: "isakmp.id.name", Kind: core.KindString}
	hfIDData     = &core.FieldSpec{Name: "Identification Data", Filter: "isakmp.id.data", Kind: core.KindBytes}

	// CERT, CR
	hfCertEncoding = &core.FieldSpec{Name: "Certificate Encoding", Filter: "isakmp.cert.encoding", Kind: core.KindUint, Strings: certEncodings}
	hfCertData     = &core.FieldSpec{Name: "Certificate Data", Filter: "isakmp.cert.data", Kind: core.KindBytes}
	hfCertType     = &core.FieldSpec{Name: "Certificate Type", Filter: "isakmp.certreq.type", Kind: core.KindUint, Strings: certEncodings}
	hfCertAuth     = &core.FieldSpec{Name: "Certificate Authority Data", Filter: "isakmp.certreq.authority", Kind: core.KindBytes}

	// N, D
	hfNotifyType = &core.FieldSpec{Name: "Notify Message Type", Filter: "isakmp.notify.msgtype", Kind: core.KindUint, Strings: notifyTypes}
	hfNotifyData = &core.FieldSpec{Name: "Notification DATA", Filter: "isakmp.notify.data", Kind: core.KindBytes}
	hfNumSPIs    = &core.FieldSpec{Name: "Number of SPIs", Filter: "isakmp.num_spis", Kind: core.KindUint}
	hfDeleteSPI  = &core.FieldSpec{Name: "Delete SPI", Filter: "isakmp.delete.spi", Kind: core.KindBytes}

	fields = []*core.FieldSpec{
		hfICookie, hfRCookie, hfNextPayload, hfVersion, hfMjVer, hfMnVer, hfExchType,
		hfFlags, hfFlagEnc, hfFlagCommit, hfFlagAuth, hfMessageID, hfLength, hfEncData, hfNonESP,
		hfPayloadNext, hfPayloadRsvd, hfPayloadLength, hfPayloadData,
		hfDOI, hfSituation,
		hfPropNumber, hfProtoID, hfSPISize, hfPropTransforms, hfSPI,
		hfTransNumber, hfTransID, hfTransRsvd,
		hfAttrFormat, hfAttrType, hfAttrLength, hfAttrValue, hfAttrBytes,
		hfKeyExch, hfHash, hfSignature, hfNonce, hfVendorID,
		hfIDType, hfIDProtocol, hfIDPort, hfIDIPv4, hfIDIPv6, hfIDName, hfIDData,
		hfCertEncoding, hfCertData, hfCertType, hfCertAuth,
		hfNotifyType, hfNotifyData, hfNumSPIs, hfDeleteSPI,
	}
)
