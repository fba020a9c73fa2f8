/**
 * Copyright 2025-present Cask Ledger contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package notify decouples activity/notification emission from the
// transactional core. Ledger operations never wait on delivery; events are
// handed to a worker goroutine and the downstream sink does its best.
package notify

import (
	"time"

	"go.uber.org/zap"
)

// Priority of a notification event.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Event is a structured activity/notification record.
type Event struct {
	Type      string
	UserId    string
	Title     string
	Message   string
	Priority  Priority
	CreatedAt time.Time
}

// Notifier fans events out to the delivery sink asynchronously.
type Notifier struct {
	events   chan Event
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		events:   make(chan Event, buffer),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins draining the event queue.
func (n *Notifier) Start() {
	go n.drainLoop()
	zap.L().Info("Notifier started")
}

// Stop drains remaining events and shuts the worker down.
func (n *Notifier) Stop() {
	zap.L().Info("Stopping notifier")
	close(n.stopChan)
	<-n.doneChan
	zap.L().Info("Notifier stopped")
}

// Emit queues an event without blocking the caller. A full buffer drops the
// event with a warning; notification delivery is fire-and-forget and must
// never stall a ledger operation.
func (n *Notifier) Emit(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Priority == "" {
		event.Priority = PriorityNormal
	}

	select {
	case n.events <- event:
	default:
		zap.L().Warn("Notification buffer full, dropping event",
			zap.String("type", event.Type),
			zap.String("user_id", event.UserId))
	}
}

func (n *Notifier) drainLoop() {
	defer close(n.doneChan)

	for {
		select {
		case event := <-n.events:
			n.deliver(event)
		case <-n.stopChan:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case event := <-n.events:
					n.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver hands the event to the outbound sink. The sink here is the
// structured log; production deployments attach email/push delivery to the
// same records.
func (n *Notifier) deliver(event Event) {
	zap.L().Info("Notification emitted",
		zap.String("type", event.Type),
		zap.String("user_id", event.UserId),
		zap.String("title", event.Title),
		zap.String("message", event.Message),
		zap.String("priority", string(event.Priority)),
		zap.Time("created_at", event.CreatedAt))
}
