package main

import (
	"context"
	"encoding/json"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/go-windbg/constants"
	"github.com/fansqz/go-windbg/debugger/windbg"
	"github.com/fansqz/go-windbg/protocol"
)

// DebuggerHandler 把客户端请求分发到调试会话的各个操作上
type DebuggerHandler struct {
	session *windbg.Session
}

func NewDebuggerHandler(session *windbg.Session) *DebuggerHandler {
	return &DebuggerHandler{session: session}
}

func (d *DebuggerHandler) handle(conn net.Conn, req []byte) {
	ctx := context.Background()
	type reqStruct struct {
		Type     constants.RequestType `json:"type"`
		Sequence uint                  `json:"sequence"`
	}
	r := &reqStruct{}
	// 判断请求类型
	if err := json.Unmarshal(req, &r); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		return
	}
	switch r.Type {
	case constants.Continue:
		d.handleContinueRequest(ctx, conn, req)
	case constants.Trace:
		d.handleTraceRequest(ctx, conn, req)
	case constants.Registers:
		d.handleRegistersRequest(ctx, conn, req)
	case constants.SetRegister:
		d.handleSetRegisterRequest(ctx, conn, req)
	case constants.WatchLibrary:
		d.handleWatchLibraryRequest(ctx, conn, req)
	case constants.UnwatchLibrary:
		d.handleUnwatchLibraryRequest(ctx, conn, req)
	case constants.SendToConsole:
		d.handleSendToConsoleRequest(ctx, conn, req)
	case constants.Terminate:
		d.handleTerminateRequest(ctx, conn, req)
	default:
		d.sendResponse(conn, r.Sequence, false, "request type not support", nil)
	}
}

func (d *DebuggerHandler) sendResponse(conn net.Conn, sequence uint, success bool, message string, body interface{}) {
	response := &protocol.Response{
		Sequence: sequence,
		Success:  success,
		Message:  message,
		Data:     body,
	}
	answer, err := json.Marshal(response)
	if err != nil {
		logrus.Warnf("marshal reponse fail, err = %v", err)
		return
	}
	conn.Write(append(answer, '\n'))
}

func (d *DebuggerHandler) handleContinueRequest(ctx context.Context, conn net.Conn, req []byte) {
	continueReq := protocol.ContinueRequest{}
	if err := json.Unmarshal(req, &continueReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, continueReq.Sequence, false, err.Error(), nil)
		return
	}
	if err := d.session.Continue(ctx); err != nil {
		d.sendResponse(conn, continueReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, continueReq.Sequence, true, "", nil)
}

func (d *DebuggerHandler) handleTraceRequest(ctx context.Context, conn net.Conn, req []byte) {
	traceReq := protocol.TraceRequest{}
	if err := json.Unmarshal(req, &traceReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, traceReq.Sequence, false, err.Error(), nil)
		return
	}
	stepType := traceReq.StepType
	if stepType == "" {
		stepType = constants.StepIn
	}
	if err := d.session.TraceUntilCall(ctx, stepType, traceReq.Count); err != nil {
		d.sendResponse(conn, traceReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, traceReq.Sequence, true, "", nil)
}

func (d *DebuggerHandler) handleRegistersRequest(ctx context.Context, conn net.Conn, req []byte) {
	registersReq := protocol.RegistersRequest{}
	if err := json.Unmarshal(req, &registersReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, registersReq.Sequence, false, err.Error(), nil)
		return
	}
	dump, err := d.session.DumpRegisters(ctx, windbg.ParseReadList(registersReq.Registers), registersReq.PerLine)
	if err != nil {
		d.sendResponse(conn, registersReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, registersReq.Sequence, true, "", dump)
}

func (d *DebuggerHandler) handleSetRegisterRequest(ctx context.Context, conn net.Conn, req []byte) {
	setReq := protocol.SetRegisterRequest{}
	if err := json.Unmarshal(req, &setReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, setReq.Sequence, false, err.Error(), nil)
		return
	}
	if err := d.session.WriteRegister(ctx, setReq.Assignment); err != nil {
		d.sendResponse(conn, setReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, setReq.Sequence, true, "", nil)
}

func (d *DebuggerHandler) handleWatchLibraryRequest(ctx context.Context, conn net.Conn, req []byte) {
	watchReq := protocol.WatchLibraryRequest{}
	if err := json.Unmarshal(req, &watchReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, watchReq.Sequence, false, err.Error(), nil)
		return
	}
	if watchReq.Library == "" {
		d.sendResponse(conn, watchReq.Sequence, false, "library cannot be empty", nil)
		return
	}
	if err := d.session.WatchModuleLoad(ctx, watchReq.Library); err != nil {
		d.sendResponse(conn, watchReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, watchReq.Sequence, true, "", nil)
}

func (d *DebuggerHandler) handleUnwatchLibraryRequest(ctx context.Context, conn net.Conn, req []byte) {
	unwatchReq := protocol.UnwatchLibraryRequest{}
	if err := json.Unmarshal(req, &unwatchReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, unwatchReq.Sequence, false, err.Error(), nil)
		return
	}
	if err := d.session.UnwatchModuleLoad(ctx, unwatchReq.Library); err != nil {
		d.sendResponse(conn, unwatchReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, unwatchReq.Sequence, true, "", nil)
}

func (d *DebuggerHandler) handleSendToConsoleRequest(ctx context.Context, conn net.Conn, req []byte) {
	sendToConsoleReq := protocol.SendToConsoleRequest{}
	if err := json.Unmarshal(req, &sendToConsoleReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, sendToConsoleReq.Sequence, false, err.Error(), nil)
		return
	}
	if err := d.session.Send(ctx, sendToConsoleReq.Content); err != nil {
		d.sendResponse(conn, sendToConsoleReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, sendToConsoleReq.Sequence, true, "", nil)
}

func (d *DebuggerHandler) handleTerminateRequest(ctx context.Context, conn net.Conn, req []byte) {
	terminateReq := protocol.TerminateRequest{}
	if err := json.Unmarshal(req, &terminateReq); err != nil {
		logrus.Warnf("parse request error, err = %v", err)
		d.sendResponse(conn, terminateReq.Sequence, false, err.Error(), nil)
		return
	}
	if err := d.session.Terminate(ctx); err != nil {
		d.sendResponse(conn, terminateReq.Sequence, false, err.Error(), nil)
		return
	}
	d.sendResponse(conn, terminateReq.Sequence, true, "", nil)
}
