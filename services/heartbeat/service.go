// Package heartbeat writes a periodic liveness frame to a serial port.
package heartbeat

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"periphcode-go/bus"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicStateHeartbeat  = bus.T("heartbeat", "state")
)

// Sender is the part of a UART handle the service needs.
type Sender interface {
	SendContext(ctx context.Context, p []byte) error
}

// State is published, retained, after every beat.
type State struct {
	Seq      uint32
	Failures uint32
	Interval time.Duration
	LastErr  string
}

type Service struct {
	Out      Sender
	Interval time.Duration // default 1 s
	Log      *slog.Logger

	seq, failures uint32
}

func (s *Service) logger() *slog.Logger {
	l := s.Log
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "heartbeat")
}

// frame renders "HB <seq>\r\n" into buf.
func frame(buf []byte, seq uint32) []byte {
	buf = append(buf[:0], "HB "...)
	buf = strconv.AppendUint(buf, uint64(seq), 10)
	return append(buf, '\r', '\n')
}

func (s *Service) beat(ctx context.Context, conn *bus.Connection, buf []byte, interval time.Duration) []byte {
	s.seq++
	buf = frame(buf, s.seq)
	st := State{Seq: s.seq, Interval: interval}
	if err := s.Out.SendContext(ctx, buf); err != nil {
		s.failures++
		st.LastErr = err.Error()
		s.logger().Warn("heartbeat not sent", "seq", s.seq, "err", err)
	}
	st.Failures = s.failures
	conn.Publish(&bus.Message{Topic: topicStateHeartbeat, Payload: st, Retained: true})
	return buf
}

// intervalOf reads an interval from a config payload: a duration, or a map
// with "interval" in seconds as decoded from JSON.
func intervalOf(payload any) (time.Duration, bool) {
	switch v := payload.(type) {
	case time.Duration:
		return v, v > 0
	case map[string]any:
		if f, ok := v["interval"].(float64); ok && f > 0 {
			return time.Duration(f * float64(time.Second)), true
		}
	}
	return 0, false
}

// Run beats until ctx is cancelled, reacting to interval changes published
// on config/heartbeat.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			s.logger().Info("heartbeat service stopping", "beats", s.seq)
			return
		case <-tick.C:
			buf = s.beat(ctx, conn, buf, interval)
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			if iv, ok := intervalOf(msg.Payload); ok {
				interval = iv
				tick.Reset(interval)
				s.logger().Info("heartbeat interval set", "interval", interval)
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.Run(ctx, conn)
	return nil
}
