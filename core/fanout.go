package core

import "codemother/schema"

// FanoutSink delivers session events to several sinks in order.
type FanoutSink struct {
	Sinks []EventSink
}

func (f FanoutSink) OnMessageEvent(event schema.MessageEvent) {
	for _, sink := range f.Sinks {
		if sink == nil {
			continue
		}
		sink.OnMessageEvent(event)
	}
}

func (f FanoutSink) OnStateEvent(event schema.StateEvent) {
	for _, sink := range f.Sinks {
		if sink == nil {
			continue
		}
		sink.OnStateEvent(event)
	}
}
