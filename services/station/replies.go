package station

import (
	"commandstation-go/bus"
	"commandstation-go/errcode"
	"commandstation-go/types"
)

func (s *Station) replyOK(m *bus.Message) {
	if m.CanReply() {
		s.conn.Reply(m, types.OKReply{OK: true}, false)
	}
}

func (s *Station) replyErr(m *bus.Message, code errcode.Code) {
	if !m.CanReply() {
		return
	}
	if code == "" || code == errcode.OK {
		code = errcode.Error
	}
	s.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}

func (s *Station) replyFromError(m *bus.Message, err error) {
	if err == nil {
		s.replyOK(m)
		return
	}
	s.replyErr(m, errcode.Of(err))
}
