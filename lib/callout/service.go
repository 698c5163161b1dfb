// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callout

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/bureau-foundation/warrant/lib/chain"
)

// Connect dials the transport with the relay's credential bundle. The
// connection identity is the only one the auth account lists as a
// callout answerer.
func Connect(url, credsPath string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.UserCredentials(credsPath),
		nats.Name("warrant-auth-service"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("callout: connecting to %s: %w", url, err)
	}
	return conn, nil
}

// Run subscribes to the callout subject and answers requests until the
// context is canceled. Requests that cannot even be decoded get no
// response; the transport's own timeout handles them.
func (a *Authorizer) Run(ctx context.Context, conn *nats.Conn) error {
	subscription, err := conn.Subscribe(chain.CalloutSubject, a.dispatch(ctx))
	if err != nil {
		return fmt.Errorf("callout: subscribing to %s: %w", chain.CalloutSubject, err)
	}
	a.log.Info("authorization service listening", "subject", chain.CalloutSubject)

	<-ctx.Done()
	if err := subscription.Drain(); err != nil {
		a.log.Error("drain failed", "error", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// dispatch returns the subscription callback. The transport delivers a
// subscription's messages sequentially on one goroutine, so each
// decision runs on its own: one slow key extraction must not stall
// every other pending connection.
func (a *Authorizer) dispatch(ctx context.Context) nats.MsgHandler {
	return func(message *nats.Msg) {
		go a.handle(ctx, message)
	}
}

func (a *Authorizer) handle(ctx context.Context, message *nats.Msg) {
	decision := a.Decide(ctx, string(message.Data))
	if decision.ClientKey == "" {
		return
	}
	response, err := a.EncodeResponse(decision)
	if err != nil {
		a.log.Error("response encoding failed", "error", err, "client", decision.ClientKey)
		return
	}
	if err := message.Respond([]byte(response)); err != nil {
		a.log.Error("response publish failed", "error", err, "client", decision.ClientKey)
	}
}
