// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/spf13/afero"

	"github.com/opentofu/mapsync/internal/config"
)

func TestServe(t *testing.T) {
	meta, _ := testMeta(t, "", "")
	if err := afero.WriteFile(meta.Fs, "test.hcl", []byte("server {\n  backend = \"memory\"\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	meta.ShutdownCtx = ctx

	addrs := make(chan net.Addr, 1)
	c := &ServeCommand{Meta: meta, ready: func(a net.Addr) { addrs <- a }}
	done := make(chan int, 1)
	go func() { done <- c.Run([]string{"-config=test.hcl", "-listen=127.0.0.1:0"}) }()

	var addr net.Addr
	select {
	case addr = <-addrs:
	case code := <-done:
		t.Fatalf("serve exited early with %d", code)
	}

	resp, err := http.Get("http://" + addr.String() + "/list")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	cancel()
	if code := <-done; code != 0 {
		t.Fatalf("wrong exit code %d", code)
	}
}

func TestOpenServerStore_unsupported(t *testing.T) {
	_, _, err := openServerStore(t.Context(), config.Server{Backend: "floppy"})
	if err == nil {
		t.Fatal("expected an error")
	}
}
