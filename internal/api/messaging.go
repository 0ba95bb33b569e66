package api

import (
	"net/http"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

func noMessaging() *async.Future[reply] {
	return fail(&Error{Kind: KindNotImplemented, Message: msgNoMessaging})
}

// messagingUpdate asks every instance to resync. The push itself runs in
// the background; the reply does not wait for delivery.
func (s *Server) messagingUpdate(*http.Request) *async.Future[reply] {
	m := s.engine.Messaging()
	if m == nil {
		return noMessaging()
	}
	s.logFailure("push update", m.PushUpdate())
	return async.Completed(accepted())
}

// messagingUserUpdate asks every instance to reload one user. An unknown
// user is accepted and nothing is sent.
func (s *Server) messagingUserUpdate(r *http.Request) *async.Future[reply] {
	m := s.engine.Messaging()
	if m == nil {
		return noMessaging()
	}
	id, err := pathUniqueID(r)
	if err != nil {
		return fail(err)
	}

	var user *async.Future[*perms.User]
	if u := s.engine.Users().GetUser(id); u != nil {
		user = async.Completed(u)
	} else {
		user = s.engine.Users().LoadUser(id)
	}
	return async.Then(user, func(u *perms.User) (reply, error) {
		if u != nil {
			s.logFailure("push user update", m.PushUserUpdate(u))
		}
		return accepted(), nil
	})
}

func (s *Server) messagingCustom(r *http.Request) *async.Future[reply] {
	m := s.engine.Messaging()
	if m == nil {
		return noMessaging()
	}
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	msg, err := wire.DecodeCustomMessage(body)
	if err != nil {
		return fail(err)
	}
	s.logFailure("send custom message", m.SendCustomMessage(msg.ChannelID, msg.Payload))
	return async.Completed(accepted())
}
