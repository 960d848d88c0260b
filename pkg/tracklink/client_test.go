// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/trackside/pkg/decodersim"
	"github.com/Thermoquad/trackside/pkg/operations"
	"github.com/Thermoquad/trackside/pkg/servicemode"
	"github.com/Thermoquad/trackside/pkg/tracklink"
)

// newLink connects a client to a simulated board over an in-memory pipe
func newLink(t *testing.T, d *decodersim.Decoder, s *decodersim.Station, opts tracklink.ClientOptions) *tracklink.Client {
	t.Helper()
	host, board := net.Pipe()
	b := decodersim.NewBoard(d, s, zerolog.Nop())
	go b.Serve(board)

	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	c := tracklink.NewClient(host, opts)
	t.Cleanup(func() {
		c.Close()
		board.Close()
	})
	return c
}

func quietOptions() servicemode.Options {
	opts := servicemode.DefaultOptions()
	opts.SettleLoops = 0
	opts.ResetSettle = 0
	opts.Sleep = func(time.Duration) {}
	return opts
}

// ============================================================
// Client Tests
// ============================================================

func TestClient_Ping(t *testing.T) {
	c := newLink(t, decodersim.New(), decodersim.NewStation(), tracklink.ClientOptions{})

	rtt, _, err := c.Ping()
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if rtt <= 0 {
		t.Errorf("rtt = %v, want > 0", rtt)
	}
}

func TestClient_OnPacketAndStats(t *testing.T) {
	var seen atomic.Int32
	c := newLink(t, decodersim.New(), decodersim.NewStation(), tracklink.ClientOptions{
		OnPacket: func(*tracklink.Packet) { seen.Add(1) },
	})

	for i := 0; i < 3; i++ {
		if _, _, err := c.Ping(); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	}

	if got := seen.Load(); got != 3 {
		t.Errorf("OnPacket called %d times, want 3", got)
	}
	snap := c.Stats().Snapshot()
	if snap.ValidPackets != 3 {
		t.Errorf("ValidPackets = %d, want 3", snap.ValidPackets)
	}
}

func TestClient_Timeout(t *testing.T) {
	host, peer := net.Pipe()
	go io.Copy(io.Discard, peer)
	c := tracklink.NewClient(host, tracklink.ClientOptions{Timeout: 50 * time.Millisecond})
	defer func() {
		c.Close()
		peer.Close()
	}()

	_, _, err := c.Ping()
	if !errors.Is(err, tracklink.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if got := c.Stats().Snapshot().Timeouts; got != 1 {
		t.Errorf("Timeouts = %d, want 1", got)
	}
}

func TestClient_PeerClosed(t *testing.T) {
	host, peer := net.Pipe()
	c := tracklink.NewClient(host, tracklink.ClientOptions{})
	defer c.Close()

	peer.Close()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop after peer closed")
	}
	if c.Err() == nil {
		t.Error("Err() should report why the reader stopped")
	}

	_, _, err := c.Ping()
	if !errors.Is(err, tracklink.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestClient_BoardRejectsInvalidCommand(t *testing.T) {
	s := decodersim.NewStation()
	c := newLink(t, decodersim.New(), s, tracklink.ClientOptions{})

	err := c.Main().Speed(3, false, 128, true, 200)
	var boardErr *tracklink.BoardError
	if !errors.As(err, &boardErr) {
		t.Fatalf("err = %v, want *BoardError", err)
	}
	if boardErr.MsgType != tracklink.MsgErrorInvalidCmd || boardErr.Rejected != tracklink.MsgSpeed {
		t.Errorf("board error = %+v", boardErr)
	}
	if _, ok := s.Last("speed"); ok {
		t.Error("rejected command reached the station")
	}
}

func TestClient_TrackFault(t *testing.T) {
	s := decodersim.NewStation()
	s.Err = errors.New("short circuit")
	c := newLink(t, decodersim.New(), s, tracklink.ClientOptions{})

	err := c.Main().PowerOn()
	var boardErr *tracklink.BoardError
	if !errors.As(err, &boardErr) {
		t.Fatalf("err = %v, want *BoardError", err)
	}
	if boardErr.MsgType != tracklink.MsgErrorTrackFault || boardErr.Track != tracklink.TrackMain {
		t.Errorf("board error = %+v", boardErr)
	}
	if got := c.Stats().Snapshot().BoardErrors; got != 1 {
		t.Errorf("BoardErrors = %d, want 1", got)
	}
}

// ============================================================
// Programming Track Tests
// ============================================================

func TestProgrammingTrack_Identify(t *testing.T) {
	d := decodersim.NewLoco(1234, 145)
	c := newLink(t, d, decodersim.NewStation(), tracklink.ClientOptions{})

	var id servicemode.Identity
	err := servicemode.Run(context.Background(), c.Programming(), quietOptions(), func(s *servicemode.Session) error {
		var err error
		id, err = s.Identify(context.Background())
		return err
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if id.Address != 1234 {
		t.Errorf("Address = %d, want 1234", id.Address)
	}
	if id.Manufacturer != "ZIMO" {
		t.Errorf("Manufacturer = %q, want ZIMO", id.Manufacturer)
	}
	if d.Powered() || d.Begun() {
		t.Error("programming track still taken after Run")
	}
}

func TestProgrammingTrack_WriteCV(t *testing.T) {
	d := decodersim.NewLoco(3, 145)
	c := newLink(t, d, decodersim.NewStation(), tracklink.ClientOptions{})

	err := servicemode.Run(context.Background(), c.Programming(), quietOptions(), func(s *servicemode.Session) error {
		return s.Write(context.Background(), 3, 12)
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := d.CV(3); got != 12 {
		t.Errorf("CV3 = %d, want 12", got)
	}
}

func TestProgrammingTrack_AckAndCurrent(t *testing.T) {
	d := decodersim.NewLoco(3, 145)
	c := newLink(t, d, decodersim.NewStation(), tracklink.ClientOptions{})
	track := c.Programming()

	mA, err := track.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if mA != decodersim.AbsentCurrent {
		t.Errorf("Current() = %d unpowered, want %d", mA, decodersim.AbsentCurrent)
	}

	if err := track.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := track.PowerOn(); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	if err := track.Verify(1, 3); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !track.Ack() {
		t.Error("Verify(1, 3) should be acknowledged")
	}
	if err := track.Verify(1, 4); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if track.Ack() {
		t.Error("Verify(1, 4) should not be acknowledged")
	}
}

// ============================================================
// Main Track Tests
// ============================================================

func TestMainTrack_Commands(t *testing.T) {
	s := decodersim.NewStation()
	c := newLink(t, decodersim.New(), s, tracklink.ClientOptions{})
	mt := c.Main()

	steps := []func() error{
		mt.Begin,
		mt.PowerOn,
		func() error { return mt.Speed(1234, true, 128, false, 40) },
		func() error { return mt.Function(3, false, 12, true) },
		func() error { return mt.AccessoryBasic(5, 1) },
		func() error { return mt.AccessoryExtended(7, 9) },
		func() error { return mt.PoMMulti(3, 29, 6) },
		func() error { return mt.PoMAccessory(5, 33, 1) },
		mt.EmergencyStop,
		mt.Loop,
		mt.PowerOff,
		mt.End,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	var got bytes.Buffer
	for _, cmd := range s.Commands() {
		got.WriteString(cmd.String())
		got.WriteString(";")
	}
	want := "begin();power_on();speed(1234,1,128,0,40);function(3,0,12,1);" +
		"accessory_basic(5,1);accessory_extended(7,9);pom_multi(3,29,6);" +
		"pom_accessory(5,33,1);emergency_stop();power_off();end();"
	if got.String() != want {
		t.Errorf("commands:\n got %s\nwant %s", got.String(), want)
	}
}

func TestMainTrack_DrivesController(t *testing.T) {
	s := decodersim.NewStation()
	c := newLink(t, decodersim.New(), s, tracklink.ClientOptions{})

	ctrl := operations.New(c.Main(), operations.DefaultOptions())
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := ctrl.Execute(context.Background(), "l3#v20#f0#w5"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	speed, ok := s.Last("speed")
	if !ok || speed.Args[4] != 20 {
		t.Errorf("last speed = %v", speed)
	}
	if _, ok := s.Last("accessory_basic"); !ok {
		t.Error("turnout command missing")
	}
	mA, err := ctrl.Current()
	if err != nil || mA != 120 {
		t.Errorf("Current() = %d, %v", mA, err)
	}
}
