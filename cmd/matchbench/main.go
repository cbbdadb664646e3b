// Command matchbench restores the concurrent-matching stress scenario
// of SPEC_FULL.md's supplemented features (matchstress.c): one writer
// is registered, then a configurable population of readers is
// registered concurrently, and the tool reports how many of them
// landed in PUBLICATION_MATCHED. Grounded on ping/ping.go's
// semaphore-bounded concurrent fan-out (sendPings), adapted from
// sending Sphinx pings to registering Matcher candidates.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/meridian-dds/meridian/core/guid"
	"github.com/meridian-dds/meridian/match"
)

type counter struct {
	matched uint64
}

func (c *counter) OnMatched(w, r guid.GUID)                         { atomic.AddUint64(&c.matched, 1) }
func (c *counter) OnUnmatched(w, r guid.GUID)                        {}
func (c *counter) OnIncompatible(w, r guid.GUID, policy match.PolicyID) {}

func registerReaders(m *match.Matcher, count, concurrency int, topic string) time.Duration {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < count; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			var g guid.GUID
			g.Prefix[0] = 1
			g.Prefix[1] = byte(i)
			g.Prefix[2] = byte(i >> 8)
			g.Prefix[3] = byte(i >> 16)
			m.RegisterReader(match.Candidate{
				GUID:     g,
				Topic:    topic,
				TypeName: "T",
				QoS:      match.QoS{Reliability: match.Reliable},
			})
		}(i)
	}
	wg.Wait()
	return time.Since(start)
}

func main() {
	count := flag.Int("count", 100, "number of readers to concurrently register")
	concurrency := flag.Int("concurrency", 16, "maximum number of concurrent registrations in flight")
	flag.Parse()

	mylog := log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	m := match.NewMatcher(mylog)
	rec := &counter{}
	m.AddListener(rec)

	var writerGUID guid.GUID
	writerGUID.Prefix[0] = 0xff
	m.RegisterWriter(match.Candidate{
		GUID:     writerGUID,
		Topic:    "bench",
		TypeName: "T",
		QoS:      match.QoS{Reliability: match.Reliable},
	})

	elapsed := registerReaders(m, *count, *concurrency, "bench")

	matched := atomic.LoadUint64(&rec.matched)
	fmt.Printf("registered %d readers concurrently (fan-out %d) in %s\n", *count, *concurrency, elapsed)
	fmt.Printf("publication matched total_count = %d/%d\n", matched, *count)
	if int(matched) != *count {
		fmt.Printf("WARNING: expected every reader to match, %d did not\n", *count-int(matched))
	}
}
