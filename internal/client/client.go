// Package client ties the per-session state managers together: one
// conversation list, one open thread, one alert aggregator and one reminder
// scanner per signed-in user, fed by exactly two realtime subscriptions.
package client

import (
	"context"
	"log"
	"sync"
	"time"

	"taskhub/internal/backend"
	"taskhub/internal/messaging"
	"taskhub/internal/notif"
	"taskhub/internal/realtime"
	"taskhub/internal/reminder"
	"taskhub/internal/store"
)

type Client struct {
	userID string
	svc    *backend.Service

	Conversations *messaging.ConversationStore
	Thread        *messaging.ThreadStore
	Alerts        *notif.Aggregator
	Reminders     *reminder.Scanner

	msgSub     *realtime.Subscription
	notifSub   *realtime.Subscription
	dispatchWG sync.WaitGroup
	closeOnce  sync.Once
}

// New builds the session's stores. Nothing is loaded or subscribed until
// Start.
func New(svc *backend.Service, profile *store.Profile, alerter reminder.Alerter, scanInterval time.Duration) *Client {
	return &Client{
		userID:        profile.UserID,
		svc:           svc,
		Conversations: messaging.NewConversationStore(svc, profile.UserID),
		Thread:        messaging.NewThreadStore(svc, profile.UserID, profile.Username),
		Alerts:        notif.NewAggregator(svc, profile.UserID),
		Reminders:     reminder.NewScanner(svc, alerter, profile.UserID, scanInterval),
	}
}

// Start opens the session's two feed subscriptions, loads initial state and
// runs the dispatch loop. The subscriptions are acquired exactly once per
// session; Close releases them.
func (c *Client) Start(ctx context.Context) error {
	// Subscribe before the initial load. A write committed while the load
	// runs then sits buffered in the subscription instead of being missed;
	// the stores merge the overlap by id once dispatch starts.
	feed := c.svc.Feed()
	c.msgSub = feed.Subscribe(realtime.TableMessages, c.userID)
	c.notifSub = feed.Subscribe(realtime.TableNotifications, c.userID)

	if err := c.Conversations.LoadAll(ctx); err != nil {
		c.msgSub.Close()
		c.notifSub.Close()
		return err
	}
	if err := c.Alerts.Refresh(ctx); err != nil {
		c.msgSub.Close()
		c.notifSub.Close()
		return err
	}

	c.dispatchWG.Add(1)
	go c.dispatch(ctx)

	c.Reminders.Start(ctx)
	return nil
}

// Close releases the feed subscriptions and stops the reminder scanner.
// Leaving a subscription open past sign-out would leak the channel and
// double-deliver on the next sign-in.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.msgSub != nil {
			c.msgSub.Close()
		}
		if c.notifSub != nil {
			c.notifSub.Close()
		}
		c.Reminders.Stop()
		c.dispatchWG.Wait()
	})
}

// OpenThread switches the open conversation, marking fetched unread
// messages read and retiring their alerts.
func (c *Client) OpenThread(ctx context.Context, counterpartID string) error {
	readIDs, err := c.Thread.Open(ctx, counterpartID)
	if len(readIDs) > 0 {
		c.Conversations.MarkLocalRead(readIDs)
		c.Alerts.DropMessages(readIDs)
	}
	return err
}

// dispatch serializes every feed event into the stores. All shared state
// transitions happen on this one goroutine, so event application keeps
// server commit order within each feed.
func (c *Client) dispatch(ctx context.Context) {
	defer c.dispatchWG.Done()

	msgCh := c.msgSub.C()
	notifCh := c.notifSub.C()

	for msgCh != nil || notifCh != nil {
		select {
		case ev, ok := <-msgCh:
			if !ok {
				msgCh = nil
				continue
			}
			c.handleMessageEvent(ctx, ev)
		case ev, ok := <-notifCh:
			if !ok {
				notifCh = nil
				continue
			}
			c.Alerts.ApplyNotificationEvent(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessageEvent(ctx context.Context, ev realtime.Event) {
	if ev.Message == nil {
		return
	}
	msg := ev.Message

	c.Thread.ApplyEvent(ev)
	if err := c.Conversations.ApplyEvent(ctx, ev); err != nil {
		log.Printf("client: conversation patch failed: %v", err)
	}

	switch ev.Op {
	case realtime.OpInsert:
		if msg.SenderID == c.userID {
			return // echo of our own send, already merged by id
		}
		if c.Thread.IsOpen(msg.SenderID) {
			// Incoming message for the open thread is read immediately.
			ids := []string{msg.ID}
			c.Thread.MarkLocalRead(ids)
			if err := c.Conversations.MarkRead(ctx, ids); err != nil {
				log.Printf("client: mark read failed: %v", err)
			}
			return
		}
		if err := c.Alerts.ApplyMessageEvent(ctx, ev); err != nil {
			log.Printf("client: message alert failed: %v", err)
		}
	case realtime.OpUpdate:
		if msg.ReceiverID == c.userID && msg.Read {
			// Read from another session; the alert is stale.
			c.Alerts.DropMessages([]string{msg.ID})
		}
	case realtime.OpDelete:
		c.Alerts.DropMessages([]string{msg.ID})
	}
}
