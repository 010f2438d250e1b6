package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"testing"
	"time"
)

func TestSelfSignedCert(t *testing.T) {
	cert, err := SelfSignedCert()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if time.Now().After(parsed.NotAfter) {
		t.Error("certificate already expired")
	}
	found := false
	for _, name := range parsed.DNSNames {
		if name == "localhost" {
			found = true
		}
	}
	if !found {
		t.Error("certificate missing localhost SAN")
	}
}

func TestListenAndDial(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Echo one message on the server side.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn) //nolint:errcheck
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	d := &TLSDialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, ok := conn.(*tls.Conn); !ok {
		t.Fatalf("expected *tls.Conn, got %T", conn)
	}

	msg := []byte("over tls")
	if _, err := conn.Write(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, len(msg))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "over tls" {
		t.Errorf("echoed %q", buf)
	}
}

func TestDialVerifyRejectsSelfSigned(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", "", "")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// Drive the handshake from the server side.
			conn.Read(make([]byte, 1)) //nolint:errcheck
			conn.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	d := &TLSDialer{Timeout: 2 * time.Second, Verify: true}
	conn, err := d.Dial(ctx, "tcp", ln.Addr().String())
	if err == nil {
		conn.Close()
		t.Fatal("verifying dialer accepted a self-signed certificate")
	}
}

func TestListenRejectsMissingCertFile(t *testing.T) {
	if _, err := Listen("127.0.0.1:0", "/does/not/exist.crt", "/does/not/exist.key"); err == nil {
		t.Fatal("expected error for missing certificate files")
	}
}
