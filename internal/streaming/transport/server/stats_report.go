package server

import (
	"encoding/json"
	"time"

	"github.com/deskstream/streamcore/internal/streaming/session"
	"github.com/deskstream/streamcore/internal/streaming/stats"
	"github.com/deskstream/streamcore/internal/streaming/wire"
)

// DefaultStatsInterval is how often the server pushes a STATS report
// to each subscriber when Config.StatsInterval is unset (spec.md §6's
// STATISTICS_* property family).
const DefaultStatsInterval = 1 * time.Second

// subscriberRates holds the per-channel RateTrackers turning a
// subscriber's cumulative byte counters into bandwidth figures.
type subscriberRates struct {
	videoOut, videoIn stats.RateTracker
	audioOut, audioIn stats.RateTracker
	ctrlOut, ctrlIn   stats.RateTracker
	userOut, userIn   stats.RateTracker
}

func (s *Server) statsLoop() {
	defer s.wg.Done()
	interval := s.cfg.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	rates := make(map[uint64]*subscriberRates)
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-t.C:
			s.broadcastStats(now, rates)
		}
	}
}

// broadcastStats computes bandwidth rates for every active subscriber
// and sends an OpServerStat-tagged snapshot on the service channel
// (spec.md §6's periodic upstream STATS report).
func (s *Server) broadcastStats(now time.Time, rates map[uint64]*subscriberRates) {
	s.subsMu.RLock()
	targets := make([]*subscriberState, 0, len(s.byHandle))
	for _, st := range s.byHandle {
		if st.sub.State() == session.StateActive {
			targets = append(targets, st)
		}
	}
	s.subsMu.RUnlock()

	live := make(map[uint64]struct{}, len(targets))
	for _, st := range targets {
		handle := st.sub.Handle
		live[handle] = struct{}{}

		r, ok := rates[handle]
		if !ok {
			r = &subscriberRates{}
			rates[handle] = r
		}

		b := st.sub.Stats
		b.BandwidthVideoOut.Store(r.videoOut.Update(st.sub.SentBytes(wire.ChannelVideoOut), now))
		b.BandwidthVideoIn.Store(r.videoIn.Update(st.sub.ReceivedBytes(wire.ChannelVideoIn), now))
		b.BandwidthAudioOut.Store(r.audioOut.Update(st.sub.SentBytes(wire.ChannelAudioOut), now))
		b.BandwidthAudioIn.Store(r.audioIn.Update(st.sub.ReceivedBytes(wire.ChannelAudioIn), now))
		b.BandwidthCtrlOut.Store(r.ctrlOut.Update(st.sub.SentBytes(wire.ChannelService), now))
		b.BandwidthCtrlIn.Store(r.ctrlIn.Update(st.sub.ReceivedBytes(wire.ChannelService), now))
		b.BandwidthUserOut.Store(r.userOut.Update(st.sub.SentBytes(wire.ChannelUserDefined), now))
		b.BandwidthUserIn.Store(r.userIn.Update(st.sub.ReceivedBytes(wire.ChannelUserDefined), now))
		b.BandwidthTotalOut.Store(b.BandwidthVideoOut.Load() + b.BandwidthAudioOut.Load() + b.BandwidthCtrlOut.Load() + b.BandwidthUserOut.Load())
		b.BandwidthTotalIn.Store(b.BandwidthVideoIn.Load() + b.BandwidthAudioIn.Load() + b.BandwidthCtrlIn.Load() + b.BandwidthUserIn.Load())
		b.MarkUpdated()

		body, err := json.Marshal(b.Snapshot())
		if err != nil {
			log.Warn("encode stats snapshot failed", "handle", handle, "err", err)
			continue
		}
		payload := append([]byte{byte(wire.OpServerStat)}, body...)
		s.sendToSubscriber(st, wire.ChannelService, payload)
	}

	for handle := range rates {
		if _, ok := live[handle]; !ok {
			delete(rates, handle)
		}
	}
}
