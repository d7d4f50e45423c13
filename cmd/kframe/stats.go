// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/utility/telegraph"
	"github.com/sirupsen/logrus"
)

const (
	msgReport uint32 = iota + 1
)

const reportInterval = time.Second

// stats reports the frame rate every second through delayed messages to itself.
type stats struct {
	id         core.ID
	dispatcher *telegraph.Dispatcher
	log        logrus.FieldLogger

	frames atomic.Int64
}

func newStats(ids *core.IDs, dispatcher *telegraph.Dispatcher, log logrus.FieldLogger) *stats {
	return &stats{
		id:         ids.Next(),
		dispatcher: dispatcher,
		log:        log,
	}
}

func (s *stats) Start() error {
	s.dispatcher.AddDispatch(s.id, s.report)
	return s.dispatcher.SendMessage(s.id, s.id, msgReport, reportInterval, nil)
}

// Count records a presented frame.
func (s *stats) Count() {
	s.frames.Add(1)
}

func (s *stats) report(msg telegraph.Message, _ core.ID) {
	s.log.WithFields(logrus.Fields{
		"fps": s.frames.Swap(0),
		"cgo": runtime.NumCgoCall(),
	}).Info("frame stats")

	if err := s.dispatcher.SendMessage(s.id, s.id, msgReport, reportInterval, nil); err != nil {
		s.log.WithError(err).Debug("stats stopped")
	}
}
