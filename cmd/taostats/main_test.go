package main

import (
	"bytes"
	"errors"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"taostats"
	"taostats/internal/chain"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"netuid=1", " limit = 5 "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params["netuid"] != "1" || params["limit"] != "5" {
		t.Fatalf("params = %v", params)
	}
	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNormalizePath(t *testing.T) {
	if got := normalizePath("api/status/v1"); got != "/api/status/v1" {
		t.Fatalf("got %s", got)
	}
	if got := normalizePath("/api/status/v1"); got != "/api/status/v1" {
		t.Fatalf("got %s", got)
	}
}

func TestStakeParamsFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "alpha"}
	addStakeFlags(cmd, true)
	if err := cmd.Flags().Parse([]string{"--hotkey=5F", "--netuid=3", "--amount=1.5", "--tolerance=0.1", "--allow-partial", "--nonce=7"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := stakeParams(cmd)
	if p.Hotkey != "5F" || p.Netuid != 3 || p.Amount != "1.5" || p.Tolerance != "0.1" || !p.AllowPartial {
		t.Fatalf("params = %+v", p)
	}
	if p.Nonce == nil || *p.Nonce != 7 {
		t.Fatalf("nonce = %v", p.Nonce)
	}
}

func TestNonceDefaultsToNext(t *testing.T) {
	cmd := &cobra.Command{Use: "tao"}
	addAccountFlags(cmd)
	if err := cmd.Flags().Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n := nonceFlag(cmd); n != nil {
		t.Fatalf("nonce = %d, want nil", *n)
	}
}

func TestPrintOutcomeFailure(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	out := taostats.Outcome{Operation: "stake", Error: "Slippage too high", Amount: decimal.NewFromInt(1)}
	err := printOutcome(cmd, out, nil)
	if err == nil {
		t.Fatalf("expected error for failed outcome")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"operation": "stake"`)) {
		t.Fatalf("outcome not printed: %s", buf.String())
	}

	boom := errors.New("boom")
	buf.Reset()
	if err := printOutcome(cmd, taostats.Outcome{}, boom); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should print on error")
	}
}

func TestNewLoggerRejectsLevel(t *testing.T) {
	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected error")
	}
	logger, err := newLogger("debug")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	_ = logger.Sync()
}

func TestRootFlagDefaults(t *testing.T) {
	root := newRootCmd()
	flag := root.PersistentFlags().Lookup("block-cache-size")
	if flag == nil {
		t.Fatalf("block-cache-size flag missing")
	}
	if want := strconv.Itoa(chain.DefaultBlockViewCapacity); flag.DefValue != want {
		t.Fatalf("block-cache-size default = %s, want %s", flag.DefValue, want)
	}
}
