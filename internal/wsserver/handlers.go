package wsserver

import (
	"context"
	"encoding/json"

	"github.com/okets/folderd/internal/fmdm"
)

func (s *Server) handleConnectionInit(ctx context.Context, sess *session, env Envelope) {
	var payload connectionInitPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendError(sess, "malformed connection.init payload")
		return
	}

	var clientType fmdm.ClientType
	switch payload.ClientType {
	case string(fmdm.ClientTUI):
		clientType = fmdm.ClientTUI
	case string(fmdm.ClientCLI):
		clientType = fmdm.ClientCLI
	case string(fmdm.ClientWeb):
		clientType = fmdm.ClientWeb
	default:
		s.sendError(sess, "unknown clientType: "+payload.ClientType)
		return
	}

	sess.clientType = clientType
	sess.initialized = true
	s.publishClients()

	s.send(sess, connectionAckReply{Type: TypeConnectionAck, ClientID: sess.id})

	// Schedule the initial push on the next tick so the peer has time to
	// register its receive handler after connection.ack arrives.
	go func() {
		s.sendInitial(sess)
	}()
}

func (s *Server) handlePing(sess *session, env Envelope) {
	s.send(sess, pongReply{Type: TypePong, ID: env.ID})
}

func (s *Server) handleFolderValidate(sess *session, env Envelope) {
	var payload pathPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendError(sess, "malformed folder.validate payload")
		return
	}
	result := s.cfg.Folders.Validate(payload.Path)
	s.send(sess, validationReply{
		ID:       env.ID,
		Valid:    result.Valid,
		Errors:   toWireIssues(result.Errors),
		Warnings: toWireIssues(result.Warnings),
	})
}

func (s *Server) handleFolderAdd(sess *session, env Envelope) {
	var payload folderAddPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendError(sess, "malformed folder.add payload")
		return
	}
	result, err := s.cfg.Folders.Add(payload.Path, payload.Model)
	if err != nil {
		s.send(sess, actionReply{ID: env.ID, Success: false, Error: err.Error()})
		return
	}
	if !result.Valid {
		s.send(sess, actionReply{ID: env.ID, Success: false, Error: firstIssueType(result.Errors)})
		return
	}
	s.send(sess, actionReply{ID: env.ID, Success: true})
}

func (s *Server) handleFolderRemove(sess *session, env Envelope) {
	var payload pathPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.sendError(sess, "malformed folder.remove payload")
		return
	}
	if err := s.cfg.Folders.Remove(payload.Path); err != nil {
		s.send(sess, actionReply{ID: env.ID, Success: false, Error: err.Error()})
		return
	}
	s.send(sess, actionReply{ID: env.ID, Success: true})
}

func (s *Server) handleModelsList(sess *session, env Envelope) {
	result := s.cfg.Models.List()
	s.send(sess, modelsListReply{
		Type: "models.list.response",
		ID:   env.ID,
		Data: modelsListData{
			Models:  result.Models,
			Backend: result.Backend,
			Cached:  result.Cached,
		},
	})
}

func toWireIssues(issues []ValidationIssue) []validationIssue {
	out := make([]validationIssue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, validationIssue{
			Type:            issue.Type,
			Message:         issue.Message,
			AffectedFolders: issue.AffectedFolders,
		})
	}
	return out
}

func firstIssueType(issues []ValidationIssue) string {
	if len(issues) == 0 {
		return "invalid"
	}
	return issues[0].Type
}
