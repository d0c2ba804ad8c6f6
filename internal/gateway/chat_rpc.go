package gateway

import (
	"strings"

	"github.com/soyeahso/consultant/internal/chat"
	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/session"
	"github.com/soyeahso/consultant/internal/stream"
)

// MessageView is a message with its parsed blocks, as rendered by surfaces.
type MessageView struct {
	domain.Message
	Blocks []domain.Block `json:"blocks,omitempty"`
}

// SessionView describes the engine's active session.
type SessionView struct {
	SessionID string        `json:"sessionId"`
	Created   bool          `json:"created,omitempty"`
	State     string        `json:"state"`
	Messages  []MessageView `json:"messages"`
}

type chatMountParams struct {
	Surface          string `json:"surface,omitempty"`
	SessionID        string `json:"sessionId,omitempty"`
	InitialMessage   string `json:"initialMessage,omitempty"`
	ProactiveStarter *bool  `json:"proactiveStarter,omitempty"`
	Autostart        bool   `json:"autostart,omitempty"`
}

type chatSendParams struct {
	Message  string `json:"message"`
	ImageRef string `json:"imageRef,omitempty"`
}

type chatSelectParams struct {
	SessionID string `json:"sessionId"`
}

type chatHistoryParams struct {
	Reload bool `json:"reload,omitempty"`
}

type chatExpandParams struct {
	MessageID string `json:"messageId"`
	Index     int    `json:"index"`
	Expanded  bool   `json:"expanded"`
}

type sessionsSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) chatAvailable() bool {
	return s.store != nil && s.keys != nil && s.consumer != nil
}

// engineFor returns the client's mounted engine, or responds with an error.
func (s *Server) engineFor(rc *RequestContext) (*chat.Engine, bool) {
	if !s.chatAvailable() {
		rc.RespondError("unavailable", "chat backend not configured")
		return nil, false
	}
	eng := rc.Client.Engine()
	if eng == nil {
		rc.RespondError("not_mounted", "call chat.mount first")
		return nil, false
	}
	return eng, true
}

// endpoint returns the backend endpoint for a client. A verified platform
// token replaces the configured access token.
func (s *Server) endpoint(c *Client) stream.Endpoint {
	ep := stream.Endpoint{
		URL:         s.cfg.Backend.ChatURL,
		APIKey:      s.cfg.Backend.APIKey,
		AccessToken: s.cfg.Backend.AccessToken,
	}
	if c.AuthResult.AccessToken != "" {
		ep.AccessToken = c.AuthResult.AccessToken
	}
	return ep
}

func (s *Server) newEngine(c *Client, p chatMountParams) *chat.Engine {
	proactive := s.cfg.Engine.ProactiveStarter
	if p.ProactiveStarter != nil {
		proactive = *p.ProactiveStarter
	}
	surface := p.Surface
	if surface == "" {
		surface = s.cfg.Engine.Surface
	}

	eng := chat.New(c.Identity(), s.store, s.keys, s.consumer, s.hooks, s.log, chat.Options{
		Surface:          surface,
		ForcedSessionID:  p.SessionID,
		InitialMessage:   p.InitialMessage,
		ProactiveStarter: proactive,
		PersistTurns:     s.cfg.Engine.Persist(),
		Endpoint:         s.endpoint(c),
		ArchiveLimit:     s.cfg.Engine.ArchiveLimit,
		Location:         s.location,
	})
	eng.Subscribe(func(ev chat.Event) {
		if err := c.SendEvent(EventChat, ev, s.eventSeq.Add(1)); err != nil {
			s.log.Debug().Err(err).Str("connId", c.ConnID).Str("event", string(ev.Type)).Msg("chat event not delivered")
		}
	})
	return eng
}

func (s *Server) view(eng *chat.Engine, h session.Handle) SessionView {
	msgs := eng.Messages()
	if h.SessionID == "" {
		h.SessionID = eng.Active()
	}
	return SessionView{
		SessionID: h.SessionID,
		Created:   h.Created,
		State:     eng.State().String(),
		Messages:  views(eng, msgs),
	}
}

func views(eng *chat.Engine, msgs []domain.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := MessageView{Message: m}
		if m.Role == domain.RoleAssistant {
			v.Blocks, _ = eng.Blocks(m.ID)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) rpcChatMount(rc *RequestContext) {
	if !s.chatAvailable() {
		rc.RespondError("unavailable", "chat backend not configured")
		return
	}
	var p chatMountParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Surface != "" && p.Surface != domain.SurfaceWidget && p.Surface != domain.SurfacePage {
		rc.RespondError("invalid_params", "unknown surface: "+p.Surface)
		return
	}
	if rc.Client.AuthResult.UserID == "" {
		rc.RespondError("unauthorized", "connection has no user identity")
		return
	}

	if old := rc.Client.Engine(); old != nil {
		old.Subscribe(nil)
	}
	eng := s.newEngine(rc.Client, p)
	rc.Client.SetEngine(eng)

	h, err := eng.Mount(rc.Client.Context())
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(s.view(eng, h))

	if p.Autostart {
		go s.autostart(rc.Client, eng)
	}
}

func (s *Server) autostart(c *Client, eng *chat.Engine) {
	d, err := eng.Autostart(c.Context())
	if err != nil {
		s.log.Warn().Err(err).Str("connId", c.ConnID).Str("decision", d.String()).Msg("autostart failed")
	}
}

func (s *Server) rpcChatSend(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	var p chatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Message) == "" && p.ImageRef == "" {
		rc.RespondError("invalid_params", "message is required")
		return
	}
	if !s.ready(rc, eng) {
		return
	}

	rc.Respond(map[string]any{"accepted": true, "sessionId": eng.Active()})
	c := rc.Client
	go func() {
		if err := eng.Send(c.Context(), p.Message, p.ImageRef); err != nil {
			s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("chat turn ended with error")
		}
	}()
}

func (s *Server) rpcChatStarter(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok || !s.ready(rc, eng) {
		return
	}

	rc.Respond(map[string]any{"accepted": true, "sessionId": eng.Active()})
	c := rc.Client
	go func() {
		if err := eng.Starter(c.Context()); err != nil {
			s.log.Debug().Err(err).Str("connId", c.ConnID).Msg("starter turn ended with error")
		}
	}()
}

// ready rejects a turn up front when the engine cannot take one.
func (s *Server) ready(rc *RequestContext, eng *chat.Engine) bool {
	switch {
	case eng.State() != session.Hydrated:
		rc.Fail(chat.ErrNotHydrated)
		return false
	case eng.Streaming():
		rc.Fail(chat.ErrBusy)
		return false
	}
	return true
}

func (s *Server) rpcChatNew(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	h, err := eng.NewChat(rc.Client.Context())
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(s.view(eng, h))
}

func (s *Server) rpcChatSelect(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	var p chatSelectParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return
	}
	h, err := eng.Select(rc.Client.Context(), p.SessionID)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(s.view(eng, h))
}

func (s *Server) rpcChatHistory(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	var p chatHistoryParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Reload {
		if _, err := eng.Reload(rc.Client.Context()); err != nil {
			rc.Fail(err)
			return
		}
	}
	rc.Respond(s.view(eng, session.Handle{}))
}

func (s *Server) rpcChatExpand(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	var p chatExpandParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	blocks, found := eng.SetExpanded(p.MessageID, p.Index, p.Expanded)
	if !found {
		rc.RespondError("not_found", "message not in the active session: "+p.MessageID)
		return
	}
	rc.Respond(map[string]any{"messageId": p.MessageID, "blocks": blocks})
}

func (s *Server) rpcSessionsArchive(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	groups, err := eng.Archive(rc.Client.Context())
	if err != nil {
		rc.Fail(err)
		return
	}
	if groups == nil {
		groups = []session.ArchiveGroup{}
	}
	rc.Respond(map[string]any{"groups": groups})
}

func (s *Server) rpcSessionsSearch(rc *RequestContext) {
	eng, ok := s.engineFor(rc)
	if !ok {
		return
	}
	var p sessionsSearchParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Query) == "" {
		rc.RespondError("invalid_params", "query is required")
		return
	}
	hits, err := eng.Search(rc.Client.Context(), p.Query, p.Limit)
	if err != nil {
		rc.Fail(err)
		return
	}
	if hits == nil {
		hits = []domain.SearchHit{}
	}
	rc.Respond(map[string]any{"hits": hits})
}
