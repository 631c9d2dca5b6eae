// Package sip dissects SIP messages carried over UDP, TCP or SCTP. Parsing is
// delegated to gosip; the tree maps its result back onto the message bytes.
package sip

import (
	"bytes"
	"strings"

	gosip "github.com/ghettovoice/gosip/sip"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/protocols/sctp"
	"firestige.xyz/strix/internal/protocols/tcp"
	"firestige.xyz/strix/internal/protocols/udp"
	"firestige.xyz/strix/internal/registry"
)

const (
	Port = 5060
	// PPINone is the SCTP payload protocol identifier "not specified", which
	// SIP over SCTP uses.
	PPINone = 0

	version = "SIP/2.0"
)

var Protocol = registry.NewProtocol("sip", "SIP", "Session Initiation Protocol")

var (
	hfRequestLine = &core.FieldSpec{Name: "Request-Line", Filter: "sip.request_line", Kind: core.KindString}
	hfStatusLine  = &core.FieldSpec{Name: "Status-Line", Filter: "sip.status_line", Kind: core.KindString}
	hfMethod      = &core.FieldSpec{Name: "Method", Filter: "sip.method", Kind: core.KindString}
	hfRURI        = &core.FieldSpec{Name: "Request-URI", Filter: "sip.r_uri", Kind: core.KindString}
	hfStatusCode  = &core.FieldSpec{Name: "Status-Code", Filter: "sip.status_code", Kind: core.KindUint, Width: 16}
	hfReason      = &core.FieldSpec{Name: "Reason-Phrase", Filter: "sip.reason_phrase", Kind: core.KindString}
	hfHeaders     = &core.FieldSpec{Name: "Message Header", Filter: "sip.msg_hdr", Kind: core.KindNone}
	hfHeader      = &core.FieldSpec{Name: "Header", Filter: "sip.header", Kind: core.KindString}
	hfCallID      = &core.FieldSpec{Name: "Call-ID", Filter: "sip.call_id", Kind: core.KindString}
	hfCSeq        = &core.FieldSpec{Name: "CSeq", Filter: "sip.cseq", Kind: core.KindString}
	hfBody        = &core.FieldSpec{Name: "Message Body", Filter: "sip.msg_body", Kind: core.KindBytes}
	hfBodyLen     = &core.FieldSpec{Name: "Body length", Filter: "sip.msg_body_len", Kind: core.KindUint, Width: 32}
)

func Register(b *registry.Builder) {
	b.RegisterTable(udp.TablePort, registry.KeyUint, "UDP port")
	b.RegisterTable(tcp.TablePort, registry.KeyUint, "TCP port")
	b.RegisterTable(sctp.TablePort, registry.KeyUint, "SCTP port")
	b.RegisterTable(sctp.TablePPI, registry.KeyUint, "SCTP payload protocol identifier")
	b.RegisterFields(hfRequestLine, hfStatusLine, hfMethod, hfRURI, hfStatusCode, hfReason,
		hfHeaders, hfHeader, hfCallID, hfCSeq, hfBody, hfBodyLen)

	h := registry.Handle{Protocol: Protocol, Dissector: registry.DissectorFunc(dissect)}
	b.RegisterDissector(udp.TablePort, Port, h)
	b.RegisterDissector(tcp.TablePort, Port, h)
	b.RegisterDissector(sctp.TablePort, Port, h)
	b.RegisterDissector(sctp.TablePPI, PPINone, h)

	heur := registry.HeuristicHandle{Protocol: Protocol, Heuristic: registry.HeuristicFunc(heuristic)}
	b.RegisterHeuristic(udp.TablePort, heur)
	b.RegisterHeuristic(tcp.TablePort, heur)
}

// startLine returns the first line of data without its terminator.
func startLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return bytes.TrimSuffix(data, []byte("\r"))
}

// looksLikeSIP checks the start line shape: "SIP/2.0 code reason" or
// "METHOD uri SIP/2.0".
func looksLikeSIP(data []byte) bool {
	line := startLine(data)
	return bytes.HasPrefix(line, []byte(version+" ")) || bytes.HasSuffix(line, []byte(" "+version))
}

func heuristic(c *registry.Call) (bool, error) {
	data, err := c.Cursor.Bytes(0, -1)
	if err != nil || !looksLikeSIP(data) {
		return false, nil
	}
	return true, dissect(c)
}

func dissect(c *registry.Call) error {
	cur := c.Cursor
	data, err := cur.Bytes(0, -1)
	if err != nil {
		return err
	}
	if !looksLikeSIP(data) {
		return registry.ErrRejected
	}
	root, err := c.AddRoot(0, -1)
	if err != nil {
		return err
	}

	msg, err := parseMessage(data)
	if err != nil {
		return core.Malformedf("%v", err)
	}

	line := startLine(data)
	switch m := msg.(type) {
	case gosip.Request:
		err = requestLine(c, root, line, m)
	case gosip.Response:
		err = statusLine(c, root, line, m)
	}
	if err != nil {
		return err
	}

	end := headerEnd(data)
	if err := headers(c, root, data, len(line), end); err != nil {
		return err
	}
	if callID, ok := msg.CallID(); ok {
		root.AppendText(" (Call-ID: %s)", callID.Value())
	}

	if n := cur.ReportedRemaining(end); n > 0 {
		body, err := c.Add(root, hfBody, end, -1)
		if err != nil {
			return err
		}
		body.SetText("%s (%d byte%s)", hfBody.Name, n, plural(n))
		c.Tree.AddGenerated(body, hfBodyLen, core.UintValue(32, uint64(len(msg.Body()))))
	}
	return nil
}

func requestLine(c *registry.Call, root *core.Field, line []byte, req gosip.Request) error {
	rl, err := c.Tree.AddValue(root, hfRequestLine, c.Cursor, 0, len(line), core.StringValue(string(line)))
	if err != nil {
		return err
	}
	method := string(req.Method())
	uri := req.Recipient().String()
	sp1 := bytes.IndexByte(line, ' ')
	sp2 := bytes.LastIndexByte(line, ' ')
	if _, err := c.Tree.AddValue(rl, hfMethod, c.Cursor, 0, sp1, core.StringValue(method)); err != nil {
		return err
	}
	if sp2 > sp1 {
		if _, err := c.Tree.AddValue(rl, hfRURI, c.Cursor, sp1+1, sp2-sp1-1, core.StringValue(uri)); err != nil {
			return err
		}
	}
	c.Ctx.SetColumn(core.ColInfo, "Request: %s %s", method, uri)
	return nil
}

func statusLine(c *registry.Call, root *core.Field, line []byte, res gosip.Response) error {
	sl, err := c.Tree.AddValue(root, hfStatusLine, c.Cursor, 0, len(line), core.StringValue(string(line)))
	if err != nil {
		return err
	}
	code := uint64(res.StatusCode())
	off := len(version) + 1
	if _, err := c.Tree.AddValue(sl, hfStatusCode, c.Cursor, off, min(3, len(line)-off), core.UintValue(16, code)); err != nil {
		return err
	}
	if reason := res.Reason(); reason != "" && len(line) > off+4 {
		if _, err := c.Tree.AddValue(sl, hfReason, c.Cursor, off+4, len(line)-off-4, core.StringValue(reason)); err != nil {
			return err
		}
	}
	c.Ctx.SetColumn(core.ColInfo, "Status: %d %s", code, res.Reason())
	return nil
}

// headerEnd returns the offset of the body, just past the blank line, or
// len(data) when the message has no blank line.
func headerEnd(data []byte) int {
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return len(data)
}

// headers adds one item per header line between the start line and end.
func headers(c *registry.Call, root *core.Field, data []byte, start, end int) error {
	off := start
	if off < len(data) && data[off] == '\r' {
		off++
	}
	if off < len(data) && data[off] == '\n' {
		off++
	}
	if off >= end {
		return nil
	}
	group, err := c.Add(root, hfHeaders, off, end-off)
	if err != nil {
		return err
	}
	for off < end {
		n := bytes.IndexByte(data[off:end], '\n')
		if n < 0 {
			n = end - off
		} else {
			n++
		}
		text := strings.TrimRight(string(data[off:off+n]), "\r\n")
		if text == "" {
			break
		}
		h, err := c.Tree.AddValue(group, hfHeader, c.Cursor, off, len(text), core.StringValue(text))
		if err != nil {
			return err
		}
		h.SetText("%s", text)
		name, value, _ := strings.Cut(text, ":")
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "call-id", "i":
			c.Tree.AddGenerated(h, hfCallID, core.StringValue(value))
		case "cseq":
			c.Tree.AddGenerated(h, hfCSeq, core.StringValue(value))
		}
		off += n
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
