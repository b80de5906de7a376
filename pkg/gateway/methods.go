package gateway

import (
	"context"
	"encoding/json"
	"time"
)

type methodHandler func(client *Client, params map[string]interface{}) (interface{}, *RPCError)

func (s *Server) registerMethods() {
	s.methods = map[string]methodHandler{
		"plan.subscribe":   s.handlePlanSubscribe,
		"plan.unsubscribe": s.handlePlanUnsubscribe,
		"plan.status":      s.handlePlanStatus,
		"plan.approve":     s.handlePlanApprove,
		"plan.run":         s.handlePlanRun,
	}
}

func stringParam(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}

// handlePlanSubscribe sets the client's plan-change filter. user_id is
// required; date is optional and empty means every date.
func (s *Server) handlePlanSubscribe(client *Client, params map[string]interface{}) (interface{}, *RPCError) {
	userID := stringParam(params, "user_id")
	if userID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "user_id is required"}
	}
	date := stringParam(params, "date")

	client.Subscribe(userID, date)
	s.logger.Debug().
		Str("client_id", client.ID).
		Str("user_id", userID).
		Str("date", date).
		Msg("Client subscribed to plan changes")

	return map[string]interface{}{"subscribed": true}, nil
}

func (s *Server) handlePlanUnsubscribe(client *Client, _ map[string]interface{}) (interface{}, *RPCError) {
	client.Unsubscribe()
	return map[string]interface{}{"subscribed": false}, nil
}

func (s *Server) handlePlanStatus(_ *Client, params map[string]interface{}) (interface{}, *RPCError) {
	planID := stringParam(params, "plan_id")
	if planID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "plan_id is required"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	plan, err := s.workflow.Plan(ctx, planID)
	if err != nil {
		return nil, &RPCError{Code: InternalError, Message: err.Error()}
	}
	return plan, nil
}

func (s *Server) handlePlanApprove(_ *Client, params map[string]interface{}) (interface{}, *RPCError) {
	planID := stringParam(params, "plan_id")
	if planID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "plan_id is required"}
	}
	approved, ok := params["approved"].(bool)
	if !ok {
		return nil, &RPCError{Code: InvalidParams, Message: "approved is required"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.workflow.Approve(ctx, planID, approved); err != nil {
		return nil, &RPCError{Code: InternalError, Message: err.Error()}
	}
	return map[string]interface{}{"resolved": true}, nil
}

// handlePlanRun triggers a workflow run in the background. The caller
// follows progress through plan.changed events; the immediate result
// only acknowledges the trigger.
func (s *Server) handlePlanRun(_ *Client, params map[string]interface{}) (interface{}, *RPCError) {
	userID := stringParam(params, "user_id")
	if userID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "user_id is required"}
	}
	date := stringParam(params, "date")

	rawIDs, _ := params["job_ids"].([]interface{})
	var jobIDs []string
	for _, raw := range rawIDs {
		if id, ok := raw.(string); ok && id != "" {
			jobIDs = append(jobIDs, id)
		}
	}
	if len(jobIDs) == 0 {
		return nil, &RPCError{Code: InvalidParams, Message: "job_ids is required"}
	}

	var overrides json.RawMessage
	if rawOverrides, ok := params["overrides"].(map[string]interface{}); ok {
		if data, err := json.Marshal(rawOverrides); err == nil {
			overrides = data
		}
	}

	go func() {
		if _, err := s.workflow.RunPlan(context.Background(), userID, jobIDs, date, overrides); err != nil {
			s.logger.Error().
				Err(err).
				Str("user_id", userID).
				Str("date", date).
				Msg("Triggered plan run failed")
		}
	}()

	return map[string]interface{}{"accepted": true}, nil
}
