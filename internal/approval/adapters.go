package approval

import (
	"context"

	"agentrun/internal/chat"
	"agentrun/internal/tools"
)

// Approve implements tools.Approver.
func (m *Manager) Approve(ctx context.Context, req tools.ApprovalRequest) (tools.ApprovalDecision, error) {
	r := &Request{
		Kind:       KindTool,
		ToolCallID: req.ToolCallID,
		ToolName:   req.ToolName,
		Arguments:  req.Arguments,
		Title:      "Approve " + req.ToolName + "?",
	}
	if req.Config != nil {
		if req.Config.Title != "" {
			r.Title = req.Config.Title
		}
		r.Message = req.Config.Message
		r.Options = req.Config.Options
	}

	res, err := m.RequestApproval(ctx, r)
	if err != nil {
		return tools.ApprovalDecision{}, err
	}
	if !res.Approved {
		return tools.ApprovalDecision{Approved: false, Message: res.Message}, tools.ErrApprovalDenied
	}
	return tools.ApprovalDecision{Approved: true, Value: res.Value, Message: res.Message}, nil
}

// Prompt asks the user to answer an interrupt and returns the answer used to
// resume the run. A timeout returns ErrTimedOut.
func (m *Manager) Prompt(ctx context.Context, info chat.InterruptInfo) (any, error) {
	res, err := m.RequestApproval(ctx, &Request{
		Kind:    KindInterrupt,
		Title:   info.Title,
		Message: info.Message,
		Options: info.Options,
		Payload: info.Payload,
	})
	if err != nil {
		return nil, err
	}
	switch res.Decision {
	case DecisionTimeout:
		return nil, ErrTimedOut
	case DecisionCancelled:
		return nil, ErrClosed
	}
	if res.Value != nil {
		return res.Value, nil
	}
	answer := map[string]any{"approved": res.Approved}
	if res.Message != "" {
		answer["message"] = res.Message
	}
	return answer, nil
}
