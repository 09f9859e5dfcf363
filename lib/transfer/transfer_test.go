// Copyright (C) 2026 The Sfshare Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"github.com/sfshare/sfshare/lib/events"
	"github.com/sfshare/sfshare/lib/protocol"
)

func testData(n int) []byte {
	bs := make([]byte, n)
	for i := range bs {
		bs[i] = byte(i*7 + i/251)
	}
	return bs
}

func writeTestFile(t *testing.T, dir, name string, data []byte) protocol.FileMeta {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	fm, err := protocol.FileMetaFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	return fm
}

// runPair runs s against r over an in-memory connection and returns both
// results. The sender side is closed when Send returns.
func runPair(t *testing.T, s *Sender, r *Receiver) (sendErr, recvErr error) {
	t.Helper()
	c1, c2 := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- r.HandleConn(context.Background(), c2, "sender")
		c2.Close()
	}()
	sendErr = s.Send(context.Background(), c1, "receiver")
	c1.Close()
	select {
	case recvErr = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("receiver did not return")
	}
	return sendErr, recvErr
}

// fakePeer drives one side of a pipe by hand.
type fakePeer struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func newFakePeer(t *testing.T, conn net.Conn) *fakePeer {
	return &fakePeer{t: t, conn: conn, br: bufio.NewReader(conn)}
}

func (p *fakePeer) send(pkt protocol.Packet) {
	p.t.Helper()
	if err := protocol.WritePacket(p.conn, pkt); err != nil {
		p.t.Fatal(err)
	}
}

func (p *fakePeer) expect(typ protocol.PacketType) protocol.Packet {
	p.t.Helper()
	pkt, err := protocol.ReadPacket(p.br)
	if err != nil {
		p.t.Fatal(err)
	}
	if pkt.Type() != typ {
		p.t.Fatalf("got %v, expected %v", pkt.Type(), typ)
	}
	return pkt
}

// startReceiver runs r on one end of a pipe and returns a fake sender for
// the other end, plus a channel carrying HandleConn's result.
func startReceiver(t *testing.T, r *Receiver) (*fakePeer, <-chan error) {
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close() })
	done := make(chan error, 1)
	go func() {
		done <- r.HandleConn(context.Background(), c2, "sender")
		c2.Close()
	}()
	return newFakePeer(t, c1), done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("timeout")
		return nil
	}
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	c1, c2 := net.Pipe()
	defer c1.Close()
	done := make(chan error, 1)
	go func() {
		done <- (&Receiver{Dir: t.TempDir()}).HandleConn(context.Background(), c2, "test")
		c2.Close()
	}()

	br := bufio.NewReader(c1)
	for i := 0; i < 3; i++ {
		state, err := Handshake(br, c1)
		if err != nil {
			t.Fatal(err)
		}
		if state != Live {
			t.Errorf("state %v, expected %v", state, Live)
		}
	}
	c1.Close()
	if err := waitErr(t, done); err != nil {
		t.Error(err)
	}
}

func TestHandshakeWrongReply(t *testing.T) {
	t.Parallel()

	c1, c2 := net.Pipe()
	defer c1.Close()
	go func() {
		peer := newFakePeer(t, c2)
		peer.expect(protocol.TypePing)
		peer.send(&protocol.AckRes{Accepted: true})
		c2.Close()
	}()

	state, err := Handshake(bufio.NewReader(c1), c1)
	if !errors.Is(err, ErrPeerUnreachable) {
		t.Fatalf("unexpected error %v", err)
	}
	if state != AwaitingPong {
		t.Errorf("state %v, expected %v", state, AwaitingPong)
	}
}

func TestHandshakeNoPeer(t *testing.T) {
	t.Parallel()

	c1, c2 := net.Pipe()
	c2.Close()
	state, err := Handshake(bufio.NewReader(c1), c1)
	if !errors.Is(err, ErrPeerUnreachable) {
		t.Fatalf("unexpected error %v", err)
	}
	if state != Disconnected {
		t.Errorf("state %v, expected %v", state, Disconnected)
	}
}

func TestSenderBlockLayout(t *testing.T) {
	t.Parallel()

	cases := []struct {
		size   int
		blocks []int
	}{
		{3000, []int{1300, 1300, 400}},
		{2600, []int{1300, 1300, 0}},
		{1300, []int{1300, 0}},
		{1, []int{1}},
		{0, []int{0}},
	}

	for _, tc := range cases {
		data := testData(tc.size)
		fm := writeTestFile(t, t.TempDir(), "a.bin", data)

		c1, c2 := net.Pipe()
		type result struct {
			blocks []int
			end    protocol.Checksum
		}
		res := make(chan result, 1)
		go func() {
			defer c2.Close()
			peer := newFakePeer(t, c2)
			peer.expect(protocol.TypePing)
			peer.send(&protocol.Pong{})
			req := peer.expect(protocol.TypeAckReq).(*protocol.AckReq)
			if len(req.Files) != 1 || req.Files[0].Name != "a.bin" || req.Files[0].Size != uint64(tc.size) {
				t.Errorf("unexpected offer %v", req)
			}
			peer.send(&protocol.AckRes{Accepted: true})

			var r result
			for {
				p, err := protocol.ReadPacket(peer.br)
				if err != nil {
					t.Error(err)
					return
				}
				switch p := p.(type) {
				case *protocol.FileBlock:
					if p.ID != fm.ID {
						t.Errorf("block id %08x, expected %08x", p.ID, fm.ID)
					}
					r.blocks = append(r.blocks, len(p.Data))
				case *protocol.FileEnd:
					r.end = p.Checksum
					res <- r
					return
				}
			}
		}()

		s := &Sender{Files: []protocol.FileMeta{fm}}
		if err := s.Send(context.Background(), c1, "test"); err != nil {
			t.Fatal(err)
		}
		c1.Close()

		r := <-res
		if len(r.blocks) != len(tc.blocks) {
			t.Fatalf("size %d: got blocks %v, expected %v", tc.size, r.blocks, tc.blocks)
		}
		for i := range r.blocks {
			if r.blocks[i] != tc.blocks[i] {
				t.Errorf("size %d: got blocks %v, expected %v", tc.size, r.blocks, tc.blocks)
				break
			}
		}
		if exp := protocol.Checksum(0).Update(data); r.end != exp {
			t.Errorf("size %d: checksum %d, expected %d", tc.size, r.end, exp)
		}
	}
}

func TestSendReceive(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	contents := map[string][]byte{
		"a.bin":     testData(3000),
		"b.txt":     []byte("hello"),
		"empty.dat": nil,
	}
	var files []protocol.FileMeta
	for name, data := range contents {
		files = append(files, writeTestFile(t, src, name, data))
	}

	evLogger := events.NewLogger()
	sub := evLogger.Subscribe(events.TransferFinished | events.ChecksumMismatch)
	defer evLogger.Unsubscribe(sub)

	sendErr, recvErr := runPair(t, &Sender{Files: files, Events: evLogger}, &Receiver{Dir: dst, Events: evLogger})
	if sendErr != nil {
		t.Fatal(sendErr)
	}
	if recvErr != nil {
		t.Fatal(recvErr)
	}

	for name, data := range contents {
		got, err := os.ReadFile(filepath.Join(dst, name))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("%s: content differs", name)
		}
	}

	// One finish from each side, no mismatches.
	for i := 0; i < 2; i++ {
		ev, err := sub.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Type != events.TransferFinished {
			t.Errorf("unexpected event %v", ev.Type)
		}
	}
}

func TestSendToListener(t *testing.T) {
	t.Parallel()

	l, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	dst := t.TempDir()
	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		done <- (&Receiver{Dir: dst}).HandleConn(context.Background(), conn, conn.RemoteAddr().String())
	}()

	fm := writeTestFile(t, t.TempDir(), "net.bin", testData(5000))
	s := &Sender{Files: []protocol.FileMeta{fm}}
	if err := s.SendTo(context.Background(), l.Addr().String()); err != nil {
		t.Fatal(err)
	}
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "net.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, testData(5000)) {
		t.Error("content differs")
	}
}

func TestSendToUnreachable(t *testing.T) {
	t.Parallel()

	l, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	s := &Sender{}
	if err := s.SendTo(context.Background(), addr); !errors.Is(err, ErrPeerUnreachable) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSenderNoFiles(t *testing.T) {
	t.Parallel()

	sendErr, recvErr := runPair(t, &Sender{}, &Receiver{Dir: t.TempDir()})
	if !errors.Is(sendErr, ErrNoFilesFound) {
		t.Errorf("unexpected error %v", sendErr)
	}
	if recvErr != nil {
		t.Error(recvErr)
	}
}

func TestSenderDeclined(t *testing.T) {
	t.Parallel()

	fm := writeTestFile(t, t.TempDir(), "a.txt", []byte("a"))
	dst := t.TempDir()
	decline := func(context.Context, ConfirmRequest) (bool, error) { return false, nil }

	sendErr, recvErr := runPair(t, &Sender{Files: []protocol.FileMeta{fm}}, &Receiver{Dir: dst, Confirm: decline})
	if !errors.Is(sendErr, ErrRequestDeclined) {
		t.Errorf("unexpected error %v", sendErr)
	}
	if recvErr != nil {
		t.Error(recvErr)
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); !os.IsNotExist(err) {
		t.Error("declined file should not exist")
	}
}

func TestSenderUnexpectedPacket(t *testing.T) {
	t.Parallel()

	fm := writeTestFile(t, t.TempDir(), "a.txt", []byte("a"))
	c1, c2 := net.Pipe()
	defer c1.Close()
	go func() {
		defer c2.Close()
		peer := newFakePeer(t, c2)
		peer.expect(protocol.TypePing)
		peer.send(&protocol.Pong{})
		peer.expect(protocol.TypeAckReq)
		peer.send(&protocol.Pong{})
	}()

	err := (&Sender{Files: []protocol.FileMeta{fm}}).Send(context.Background(), c1, "test")
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("unexpected error %v", err)
	}
	if perr.Packet != protocol.TypePong || !errors.Is(err, ErrUnexpectedPacket) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestSenderConfirmGate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var files []protocol.FileMeta
	for _, name := range []string{"1", "2", "3", "4", "5", "6"} {
		files = append(files, writeTestFile(t, dir, name, []byte(name)))
	}

	cases := []struct {
		files     []protocol.FileMeta
		size      uint64
		confirmed bool
	}{
		{files[:5], 0, false},
		{files, 0, true},
		{files[:1], 0, false},
		{files[:2], 1, true},
	}

	for i, tc := range cases {
		asked := false
		refuse := func(_ context.Context, req ConfirmRequest) (bool, error) {
			asked = true
			if len(req.Files) != len(tc.files) {
				t.Errorf("%d: asked about %d files, expected %d", i, len(req.Files), len(tc.files))
			}
			return false, nil
		}
		s := &Sender{Files: tc.files, Confirm: refuse, ConfirmSize: tc.size}
		sendErr, recvErr := runPair(t, s, &Receiver{Dir: t.TempDir()})
		if asked != tc.confirmed {
			t.Errorf("%d: asked %v, expected %v", i, asked, tc.confirmed)
		}
		if tc.confirmed && !errors.Is(sendErr, ErrAborted) {
			t.Errorf("%d: unexpected error %v", i, sendErr)
		}
		if !tc.confirmed && sendErr != nil {
			t.Errorf("%d: unexpected error %v", i, sendErr)
		}
		if recvErr != nil {
			t.Errorf("%d: %v", i, recvErr)
		}
	}
}

func TestSenderSkipsUnreadable(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	good := writeTestFile(t, src, "good.txt", []byte("good"))
	gone := writeTestFile(t, src, "gone.txt", []byte("gone"))
	other := writeTestFile(t, src, "other.txt", []byte("other"))
	if err := os.Remove(gone.Path); err != nil {
		t.Fatal(err)
	}

	evLogger := events.NewLogger()
	sub := evLogger.Subscribe(events.TransferRequested | events.TransferFinished)
	defer evLogger.Unsubscribe(sub)

	c1, c2 := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- (&Receiver{Dir: dst, Events: evLogger}).HandleConn(context.Background(), c2, "sender")
		c2.Close()
	}()

	// The unreadable file is left out of the offer, so the receiver's
	// session completes and the same connection takes another offer.
	if err := (&Sender{Files: []protocol.FileMeta{gone, good}}).Send(context.Background(), c1, "receiver"); err != nil {
		t.Fatal(err)
	}
	if err := (&Sender{Files: []protocol.FileMeta{other}}).Send(context.Background(), c1, "receiver"); err != nil {
		t.Fatal(err)
	}
	c1.Close()
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}

	expected := []struct {
		typ   events.EventType
		files int
	}{
		{events.TransferRequested, 1},
		{events.TransferFinished, 1},
		{events.TransferRequested, 1},
		{events.TransferFinished, 1},
	}
	for _, exp := range expected {
		ev, err := sub.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		data := ev.Data.(map[string]interface{})
		if ev.Type != exp.typ || data["files"] != exp.files {
			t.Errorf("got %v with %v files, expected %v with %d", ev.Type, data["files"], exp.typ, exp.files)
		}
	}

	for name, exp := range map[string]string{"good.txt": "good", "other.txt": "other"} {
		if got, err := os.ReadFile(filepath.Join(dst, name)); err != nil || string(got) != exp {
			t.Errorf("%s: %q, %v", name, got, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dst, "gone.txt")); !os.IsNotExist(err) {
		t.Error("skipped file should not exist")
	}
}

func TestSenderAllUnreadable(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	gone := writeTestFile(t, src, "gone.txt", []byte("gone"))
	if err := os.Remove(gone.Path); err != nil {
		t.Fatal(err)
	}

	sendErr, recvErr := runPair(t, &Sender{Files: []protocol.FileMeta{gone}}, &Receiver{Dir: t.TempDir()})
	if !errors.Is(sendErr, ErrNoFilesFound) {
		t.Errorf("unexpected error %v", sendErr)
	}
	if recvErr != nil {
		t.Error(recvErr)
	}
}

func TestReceiverDuplicateIDKeepsFirst(t *testing.T) {
	t.Parallel()

	dst := t.TempDir()
	p, done := startReceiver(t, &Receiver{Dir: dst})

	p.send(&protocol.AckReq{Files: []protocol.FileMeta{
		{ID: 7, Name: "same.txt", Size: 10},
		{ID: 7, Name: "renamed.txt", Size: 11},
	}})
	if res := p.expect(protocol.TypeAckRes).(*protocol.AckRes); !res.Accepted {
		t.Fatal("offer declined")
	}
	data := []byte("AAAA-first")
	p.send(&protocol.FileBlock{ID: 7, Data: data})
	p.send(&protocol.FileEnd{Checksum: protocol.Checksum(0).Update(data)})

	// The session is over, so the connection answers pings again.
	p.send(&protocol.Ping{})
	p.expect(protocol.TypePong)
	p.conn.Close()
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}

	if got, err := os.ReadFile(filepath.Join(dst, "same.txt")); err != nil || !bytes.Equal(got, data) {
		t.Errorf("same.txt: %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "renamed.txt")); !os.IsNotExist(err) {
		t.Error("second entry with the same id should not be written")
	}
}

func TestSendTwiceOnConnection(t *testing.T) {
	t.Parallel()

	src, dst := t.TempDir(), t.TempDir()
	a := writeTestFile(t, src, "a.txt", []byte("first"))
	b := writeTestFile(t, src, "b.txt", []byte("second"))

	c1, c2 := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- (&Receiver{Dir: dst}).HandleConn(context.Background(), c2, "sender")
		c2.Close()
	}()
	for _, fm := range []protocol.FileMeta{a, b} {
		if err := (&Sender{Files: []protocol.FileMeta{fm}}).Send(context.Background(), c1, "receiver"); err != nil {
			t.Fatal(err)
		}
	}
	c1.Close()
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}

	for name, exp := range map[string]string{"a.txt": "first", "b.txt": "second"} {
		if got, err := os.ReadFile(filepath.Join(dst, name)); err != nil || string(got) != exp {
			t.Errorf("%s: %q, %v", name, got, err)
		}
	}
}

func TestReceiverDeclineKeepsConnection(t *testing.T) {
	t.Parallel()

	var asked ConfirmRequest
	decline := func(_ context.Context, req ConfirmRequest) (bool, error) {
		asked = req
		return false, nil
	}
	peer, done := startReceiver(t, &Receiver{Dir: t.TempDir(), Confirm: decline})

	files := []protocol.FileMeta{{ID: protocol.FileID("x"), Name: "x", Size: 10}}
	peer.send(&protocol.AckReq{Files: files})
	if res := peer.expect(protocol.TypeAckRes).(*protocol.AckRes); res.Accepted {
		t.Error("should have been declined")
	}

	// Still answering pings after the decline.
	peer.send(&protocol.Ping{})
	peer.expect(protocol.TypePong)

	peer.conn.Close()
	if err := waitErr(t, done); err != nil {
		t.Error(err)
	}
	if asked.TotalSize != 10 || len(asked.Files) != 1 || asked.Peer != "sender" {
		t.Errorf("unexpected confirm request %+v", asked)
	}
}

func TestReceiverConfirmError(t *testing.T) {
	t.Parallel()

	fail := func(context.Context, ConfirmRequest) (bool, error) { return false, io.ErrClosedPipe }
	peer, done := startReceiver(t, &Receiver{Dir: t.TempDir(), Confirm: fail})
	peer.send(&protocol.AckReq{})
	if err := waitErr(t, done); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReceiverChecksumMismatch(t *testing.T) {
	t.Parallel()

	dst := t.TempDir()
	evLogger := events.NewLogger()
	sub := evLogger.Subscribe(events.ChecksumMismatch)
	defer evLogger.Unsubscribe(sub)

	peer, done := startReceiver(t, &Receiver{Dir: dst, Events: evLogger})
	id := protocol.FileID("f.txt")
	peer.send(&protocol.AckReq{Files: []protocol.FileMeta{{ID: id, Name: "f.txt", Size: 3}}})
	peer.expect(protocol.TypeAckRes)
	peer.send(&protocol.FileBlock{ID: id, Data: []byte("abc")})
	peer.send(&protocol.FileEnd{Checksum: 295})
	peer.conn.Close()

	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}
	if got, err := os.ReadFile(filepath.Join(dst, "f.txt")); err != nil || string(got) != "abc" {
		t.Errorf("f.txt: %q, %v", got, err)
	}

	ev, err := sub.Poll(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	data := ev.Data.(map[string]interface{})
	if data["item"] != "f.txt" || data["expected"] != uint64(295) || data["actual"] != uint64(294) {
		t.Errorf("unexpected event data %v", data)
	}
}

func TestReceiverUnrequestedBlock(t *testing.T) {
	t.Parallel()

	dst := t.TempDir()
	evLogger := events.NewLogger()
	sub := evLogger.Subscribe(events.UnrequestedBlock)
	defer evLogger.Unsubscribe(sub)

	peer, done := startReceiver(t, &Receiver{Dir: dst, Events: evLogger})

	// Outside of any transfer.
	peer.send(&protocol.FileBlock{ID: 99, Data: []byte("junk")})
	peer.send(&protocol.FileEnd{})

	id := protocol.FileID("f.txt")
	peer.send(&protocol.AckReq{Files: []protocol.FileMeta{{ID: id, Name: "f.txt", Size: 4}}})
	peer.expect(protocol.TypeAckRes)

	// Inside a transfer, before the file is opened.
	peer.send(&protocol.FileBlock{ID: 98, Data: []byte("junk")})
	peer.send(&protocol.FileBlock{ID: id, Data: []byte("good")})
	peer.send(&protocol.FileBlock{ID: id, Data: nil})
	peer.send(&protocol.FileEnd{Checksum: protocol.Checksum(0).Update([]byte("good"))})
	peer.conn.Close()

	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}
	if got, err := os.ReadFile(filepath.Join(dst, "f.txt")); err != nil || string(got) != "good" {
		t.Errorf("f.txt: %q, %v", got, err)
	}
	for _, exp := range []uint32{99, 98} {
		ev, err := sub.Poll(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if id := ev.Data.(map[string]interface{})["id"]; id != exp {
			t.Errorf("discarded block %v, expected %v", id, exp)
		}
	}
}

func TestReceiverIDMismatch(t *testing.T) {
	t.Parallel()

	dst := t.TempDir()
	peer, done := startReceiver(t, &Receiver{Dir: dst})
	a, b := protocol.FileID("a"), protocol.FileID("b")
	peer.send(&protocol.AckReq{Files: []protocol.FileMeta{
		{ID: a, Name: "a", Size: 2600},
		{ID: b, Name: "b", Size: 1},
	}})
	peer.expect(protocol.TypeAckRes)
	peer.send(&protocol.FileBlock{ID: a, Data: testData(1300)})
	peer.send(&protocol.FileBlock{ID: b, Data: []byte("b")})

	err := waitErr(t, done)
	var perr *ProtocolError
	if !errors.As(err, &perr) || !errors.Is(err, ErrIDMismatch) {
		t.Fatalf("unexpected error %v", err)
	}
	if perr.Packet != protocol.TypeFileBlock {
		t.Errorf("error on %v, expected FileBlock", perr.Packet)
	}

	// The partial file is left in place.
	if info, err := os.Stat(filepath.Join(dst, "a")); err != nil || info.Size() != 1300 {
		t.Errorf("partial file: %v, %v", info, err)
	}
}

func TestReceiverOfferDuringTransfer(t *testing.T) {
	t.Parallel()

	peer, done := startReceiver(t, &Receiver{Dir: t.TempDir()})
	files := []protocol.FileMeta{{ID: protocol.FileID("a"), Name: "a", Size: 1}}
	peer.send(&protocol.AckReq{Files: files})
	peer.expect(protocol.TypeAckRes)
	peer.send(&protocol.AckReq{Files: files})

	if err := waitErr(t, done); !errors.Is(err, ErrUnexpectedPacket) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReceiverUnexpectedAckRes(t *testing.T) {
	t.Parallel()

	peer, done := startReceiver(t, &Receiver{Dir: t.TempDir()})
	peer.send(&protocol.AckRes{Accepted: true})
	if err := waitErr(t, done); !errors.Is(err, ErrUnexpectedPacket) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReceiverUnknownPacket(t *testing.T) {
	t.Parallel()

	peer, done := startReceiver(t, &Receiver{Dir: t.TempDir()})
	if _, err := peer.conn.Write([]byte{0x7f}); err != nil {
		t.Fatal(err)
	}
	if err := waitErr(t, done); !errors.Is(err, protocol.ErrUnknownPacketType) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestReceiverEmptyOffer(t *testing.T) {
	t.Parallel()

	peer, done := startReceiver(t, &Receiver{Dir: t.TempDir()})
	peer.send(&protocol.AckReq{})
	if res := peer.expect(protocol.TypeAckRes).(*protocol.AckRes); !res.Accepted {
		t.Error("empty offer should be accepted")
	}
	// A new offer is fine; no transfer is in progress.
	peer.send(&protocol.AckReq{})
	peer.expect(protocol.TypeAckRes)
	peer.conn.Close()
	if err := waitErr(t, done); err != nil {
		t.Error(err)
	}
}

func TestReceiverInvalidFilename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	if err := os.Mkdir(dst, 0o755); err != nil {
		t.Fatal(err)
	}
	peer, done := startReceiver(t, &Receiver{Dir: dst})
	id := protocol.FileID("../escape")
	peer.send(&protocol.AckReq{Files: []protocol.FileMeta{{ID: id, Name: "../escape", Size: 1}}})
	peer.expect(protocol.TypeAckRes)
	peer.send(&protocol.FileBlock{ID: id, Data: []byte("x")})

	if err := waitErr(t, done); !errors.Is(err, ErrInvalidFilename) {
		t.Errorf("unexpected error %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape")); !os.IsNotExist(err) {
		t.Error("file escaped the destination directory")
	}
}

func TestDestinationPath(t *testing.T) {
	t.Parallel()

	valid := []string{"a.txt", "..a", "a..", "with space", "ünïcode"}
	for _, name := range valid {
		path, err := destinationPath("dst", name)
		if err != nil {
			t.Errorf("%q: %v", name, err)
		}
		if path != filepath.Join("dst", name) {
			t.Errorf("%q: got %q", name, path)
		}
	}

	invalid := []string{"", ".", "..", "a/b", "../a", `a\b`, "/abs", "a\x00b"}
	for _, name := range invalid {
		if _, err := destinationPath("dst", name); !errors.Is(err, ErrInvalidFilename) {
			t.Errorf("%q: unexpected error %v", name, err)
		}
	}
}

func TestContextCancelClosesConnection(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c1, c2 := net.Pipe()
	defer c1.Close()
	done := make(chan error, 1)
	go func() {
		done <- (&Receiver{Dir: t.TempDir()}).HandleConn(ctx, c2, "sender")
	}()
	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error %v", err)
	}
}
