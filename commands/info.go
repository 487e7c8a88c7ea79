package commands

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"pingmesh/config"
	"pingmesh/datastore/leveldb"
)

func RunInfo(ctx context.Context, cfg *config.Config, tail uint64) {
	journal, err := leveldb.NewJournal(cfg.DataStore.JournalPath, cfg.DataStore.MaxEvents)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer journal.Close()

	events, err := journal.Tail(tail)
	if err != nil {
		log.Errorf("Failed to read journal: %v", err)
		return
	}

	log.Infof("Node %s, journal: %d events recorded, showing %d", cfg.Node.Address, journal.GetSeq(), len(events))
	for _, ev := range events {
		log.Infof("Event: seq=%d, kind=%s, peer=%s, clock=%d, time=%s, rtt=%d, detail=%q",
			ev.SequenceNumber, ev.Kind, ev.Peer, ev.ClockMillis, ev.Time.Format(time.RFC3339), ev.RTTMillis, ev.Detail)
	}

	summaries := leveldb.Summarize(events)
	log.Infof("Peers: %d seen", len(summaries))
	for _, s := range summaries {
		log.Infof("Peer: %s, last: %s, last seen: %v ago, probes: %d, last rtt: %d ms, send failures: %d",
			s.Peer, s.LastKind, time.Since(s.LastSeen).Round(time.Second), s.Probes, s.LastRTT, s.SendFailure)
	}
}
