package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestConn_ReadBuffered(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()
	ctx := context.Background()

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	go server.Write(want)

	got := make([]byte, 0, len(want))
	buf := make([]byte, 8)
	for len(got) < len(want) {
		n, err := c.Read(ctx, buf)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Read = %v, want %v", got, want)
	}
}

func TestConn_BytesToRead(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()

	if n := c.BytesToRead(); n != 0 {
		t.Errorf("BytesToRead on idle conn = %d, want 0", n)
	}

	go server.Write([]byte{1, 2, 3})

	// The fill goroutine needs a moment to buffer the bytes.
	deadline := time.Now().Add(time.Second)
	for c.BytesToRead() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("BytesToRead = %d, want 3", c.BytesToRead())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConn_ReadCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	c := NewConn(client)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Read(ctx, make([]byte, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestConn_PeerCloseSurfacesError(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()

	server.Close()

	_, err := c.Read(context.Background(), make([]byte, 1))
	if err == nil {
		t.Error("read after peer close succeeded")
	}
}

func TestConn_Write(t *testing.T) {
	client, server := net.Pipe()
	c := NewConn(client)
	defer c.Close()

	want := []byte{0x01, 0x02}
	got := make([]byte, len(want))
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Read(got)
	}()

	if _, err := c.Write(context.Background(), want); err != nil {
		t.Fatal(err)
	}
	<-done
	if !bytes.Equal(got, want) {
		t.Errorf("peer read %v, want %v", got, want)
	}
}
