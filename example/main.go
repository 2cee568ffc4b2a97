// A two-endpoint simulation of rate-controlled media over a lossy link.
// The sender paces packets according to the flow's allowed rate, the link
// drops and delays packets, and the receiver echoes feedback back. Run with
// -qlog to capture the rate-control events as NDJSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	tfrc "github.com/tfrc-go/tfrc-go"
	"github.com/tfrc-go/tfrc-go/qlog"
)

type packet struct {
	seq     uint16
	ts      uint32
	rtt     time.Duration
	size    tfrc.ByteCount
	sentAt  tfrc.Time
	arrives time.Time
}

type feedback struct {
	echoedTimestamp uint32
	delay           time.Duration
	report          tfrc.FeedbackReport
	arrives         time.Time
}

func main() {
	duration := flag.Duration("duration", 30*time.Second, "simulation duration")
	lossRate := flag.Float64("loss", 0.01, "link loss probability per packet")
	linkDelay := flag.Duration("delay", 25*time.Millisecond, "one-way link delay")
	linkRate := flag.Int("link", 2_000_000, "link capacity in bytes per second")
	smallPacket := flag.Bool("sp", false, "use the small-packet variant")
	qlogPath := flag.String("qlog", "", "write rate-control events to this file")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	var tracer *tfrc.Tracer
	if *qlogPath != "" {
		f, err := os.Create(*qlogPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		tracer = qlog.NewTracer(f)
	}

	rng := rand.New(rand.NewSource(*seed))
	dataCh := make(chan packet, 1024)
	fbCh := make(chan feedback, 64)

	fbSender := &linkFeedbackSender{ch: fbCh, delay: *linkDelay}

	sendFlow := tfrc.NewFlow(&tfrc.Config{
		SmallPacket: *smallPacket,
		Tracer:      tracer,
	})
	defer sendFlow.Close()
	recvFlow := tfrc.NewFlow(&tfrc.Config{
		SmallPacket:    *smallPacket,
		FeedbackSender: fbSender,
	})
	defer recvFlow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// The link enforces its capacity with a token bucket.
	link := rate.NewLimiter(rate.Limit(*linkRate), 16*1500)

	var sent, delivered, lost uint64

	g.Go(func() error { // sender
		const segment = tfrc.ByteCount(1200)
		var seq uint16
		for {
			now := tfrc.Now()
			if t := sendFlow.TimeUntilSend(); now.Before(t) {
				select {
				case <-time.After(t.Sub(now)):
				case <-ctx.Done():
					return nil
				}
				now = tfrc.Now()
			}
			rtt, ts := sendFlow.PacketStamp(now)
			size := segment
			if *smallPacket {
				size = 200 + tfrc.ByteCount(rng.Intn(300))
			}
			sendFlow.SentPacket(now, size, true)
			sent++
			if rng.Float64() < *lossRate {
				lost++
				seq++
				continue
			}
			if err := link.WaitN(ctx, int(size)); err != nil {
				return nil
			}
			select {
			case dataCh <- packet{
				seq:     seq,
				ts:      ts,
				rtt:     rtt,
				size:    size,
				sentAt:  now,
				arrives: time.Now().Add(*linkDelay),
			}:
			case <-ctx.Done():
				return nil
			}
			seq++
		}
	})

	g.Go(func() error { // receiver
		for {
			select {
			case p := <-dataCh:
				if d := time.Until(p.arrives); d > 0 {
					select {
					case <-time.After(d):
					case <-ctx.Done():
						return nil
					}
				}
				fbSender.ObservedPacket(p.ts)
				recvFlow.ReceivedPacket(tfrc.Now(), p.ts, p.seq, p.rtt, p.size)
				delivered++
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error { // feedback path
		for {
			select {
			case fb := <-fbCh:
				if d := time.Until(fb.arrives); d > 0 {
					select {
					case <-time.After(d):
					case <-ctx.Done():
						return nil
					}
				}
				if err := sendFlow.ReceivedFeedback(tfrc.Now(), fb.echoedTimestamp, fb.delay, fb.report); err != nil {
					fmt.Fprintln(os.Stderr, "feedback rejected:", err)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error { // progress
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("rate: %8d B/s  rtt: %8s  sent: %6d  delivered: %6d  lost: %4d\n",
					sendFlow.SendRate(), sendFlow.AveragedRTT(), sent, delivered, lost)
			case <-ctx.Done():
				return nil
			}
		}
	})

	_ = g.Wait()
	fmt.Printf("done: sent %d packets, delivered %d, lost %d, final rate %d B/s\n",
		sent, delivered, lost, sendFlow.SendRate())
}

// linkFeedbackSender forwards feedback reports onto the simulated link,
// recording the timestamp echo and the processing delay the way a real
// transport would carry them in its feedback messages.
type linkFeedbackSender struct {
	ch    chan feedback
	delay time.Duration

	lastTimestamp uint32
	lastReceived  time.Time
}

func (s *linkFeedbackSender) ObservedPacket(ts uint32) {
	s.lastTimestamp = ts
	s.lastReceived = time.Now()
}

func (s *linkFeedbackSender) SendFeedback(report tfrc.FeedbackReport) {
	select {
	case s.ch <- feedback{
		echoedTimestamp: s.lastTimestamp,
		delay:           time.Since(s.lastReceived),
		report:          report,
		arrives:         time.Now().Add(s.delay),
	}:
	default:
	}
}
