package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pozgpt/chat/internal/account"
	"github.com/pozgpt/chat/internal/auth"
	"github.com/pozgpt/chat/internal/chat"
	"github.com/pozgpt/chat/internal/factory"
	"github.com/pozgpt/chat/internal/logger"
	"github.com/pozgpt/chat/internal/model"
	"github.com/pozgpt/chat/internal/relay"
	"github.com/pozgpt/chat/internal/session"
	"github.com/pozgpt/chat/internal/store"
)

// core bundles the wired client pieces a subcommand needs.
type core struct {
	store store.Store
	ctrl  *chat.Controller
}

func newCore(ctx context.Context, userID string) (*core, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New("chatctl")
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	tracker := session.NewStatic(userID)
	ctrl := chat.NewController(st, tracker, log, chat.Options{
		DeleteBatchSize: cfg.DeleteBatchSize,
		ReloadDebounce:  time.Duration(cfg.ReloadDebounceMS) * time.Millisecond,
	})
	return &core{store: st, ctrl: ctrl}, nil
}

func runRegister(ctx context.Context, email, password, name, gender string, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("chatctl")
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	provider := auth.NewLocalProvider(cfg.JWTSecret, time.Hour)
	ident, err := provider.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	u, err := st.Users().Create(ctx, &model.User{
		UserID: ident.UserID,
		Email:  ident.Email,
		Name:   name,
		Gender: gender,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "registered user %s\n", u.UserID)
	return nil
}

func runSend(ctx context.Context, userID, text string, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newCore(ctx, userID)
	if err != nil {
		return err
	}
	log := logger.New("chatctl")
	client := relay.NewClient(cfg.RelayURL, log, relay.WithModel(cfg.Model))
	orch := chat.NewTurnOrchestrator(c.ctrl, client, log)
	if err := orch.SendTurn(ctx, text); err != nil {
		return err
	}
	history := c.ctrl.History()
	if len(history) > 0 {
		last := history[len(history)-1]
		fmt.Fprintf(out, "%s: %s\n", last.Role, last.Content)
	}
	return nil
}

func runNewChat(ctx context.Context, userID string, out io.Writer) error {
	c, err := newCore(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.ctrl.HandleNewOrSwitchChat(ctx, chat.SwitchRequest{}); err != nil {
		return err
	}
	fmt.Fprintf(out, "active conversation %s\n", c.ctrl.ActiveConversationID())
	return nil
}

func runSwitch(ctx context.Context, userID, conversationID string, out io.Writer) error {
	c, err := newCore(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.ctrl.HandleNewOrSwitchChat(ctx, chat.SwitchRequest{TargetID: conversationID}); err != nil {
		return err
	}
	active := c.ctrl.ActiveConversationID()
	if active != conversationID {
		fmt.Fprintf(out, "switch aborted, conversation %s not found\n", conversationID)
		return nil
	}
	fmt.Fprintf(out, "active conversation %s\n", active)
	return nil
}

func runList(ctx context.Context, userID string, out io.Writer) error {
	c, err := newCore(ctx, userID)
	if err != nil {
		return err
	}
	convos, err := c.store.Conversations().List(ctx, userID)
	if err != nil {
		return err
	}
	for _, convo := range convos {
		state := "open"
		if convo.Archived() {
			state = "archived"
		}
		fmt.Fprintf(out, "%s  %s  %s  %q\n",
			convo.ConversationID, convo.StartedAt.Format(time.RFC3339), state, convo.Title)
	}
	return nil
}

func runHistory(ctx context.Context, userID, conversationID string, out io.Writer) error {
	c, err := newCore(ctx, userID)
	if err != nil {
		return err
	}
	msgs, err := c.store.Messages().List(ctx, model.ListMessagesRequest{
		UserID:         userID,
		ConversationID: conversationID,
	})
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
	}
	return nil
}

func runDeleteChat(ctx context.Context, userID, conversationID string, out io.Writer) error {
	c, err := newCore(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.ctrl.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted conversation %s\n", conversationID)
	return nil
}

func runDeleteAccount(ctx context.Context, userID, password string, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("chatctl")
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	u, err := st.Users().Get(ctx, userID)
	if err != nil {
		return err
	}
	// The CLI runs outside the app's auth session, so it rebuilds a provider
	// holding the supplied credential and lets the deleter's re-auth gate run
	// against it.
	provider := auth.NewLocalProvider(cfg.JWTSecret, time.Hour)
	if _, err := provider.SignUp(ctx, u.Email, password); err != nil {
		return err
	}
	tracker := session.NewStatic(userID)
	deleter := account.NewDeleter(st, provider, tracker, log, cfg.DeleteBatchSize)
	if err := deleter.DeleteAccount(ctx, password); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted account %s\n", userID)
	return nil
}
