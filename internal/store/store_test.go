package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"net/netip"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/iti/ltesim"
)

func TestNullable(t *testing.T) {
	if v := nullable(12.5); !v.Valid || v.Float64 != 12.5 {
		t.Fatalf("nullable(12.5) = %+v", v)
	}
	if v := nullable(0); !v.Valid {
		t.Fatalf("zero stored as NULL")
	}
	for _, undefined := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if v := nullable(undefined); v.Valid {
			t.Fatalf("nullable(%v) = %+v, want NULL", undefined, v)
		}
	}
}

func TestNewRejectsMalformedDSN(t *testing.T) {
	if _, err := New("not a dsn"); err == nil {
		t.Fatalf("malformed DSN accepted")
	}
}

// TestStoreRoundTrip needs a MySQL server; it runs only when
// LTESIM_TEST_MYSQL_DSN names one
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("LTESIM_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("LTESIM_TEST_MYSQL_DSN not set")
	}
	s, err := New(dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	run := Run{ID: uuid.NewString(), Variant: "stream-ftp", Seed: "ltesim", UEs: 15, ENBs: 3, SimSeconds: 60, Status: StatusRunning}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	metrics := []ltesim.FlowMetrics{{
		FlowID: 1,
		Tuple: ltesim.FiveTuple{
			SrcAddr: netip.MustParseAddr("1.0.0.2"), DstAddr: netip.MustParseAddr("7.0.0.2"),
			SrcPort: 49153, DstPort: 100, Protocol: ltesim.ProtoUDP,
		},
		TxPackets:      10,
		ThroughputKbps: math.NaN(),
		MeanDelayMs:    math.NaN(),
		MeanJitterMs:   math.NaN(),
		LostPackets:    10,
		LossPercent:    100,
	}}
	if err := s.InsertFlowMetrics(ctx, run.ID, metrics); err != nil {
		t.Fatalf("InsertFlowMetrics: %v", err)
	}
	if err := s.FinishRun(ctx, run.ID, StatusFailed, errors.New("flow 2: integrity")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRun = %v, %v", got, err)
	}
	if got.Status != StatusFailed || got.ErrorMessage.String != "flow 2: integrity" || got.UEs != 15 {
		t.Fatalf("run = %+v", got)
	}
	if missing, err := s.GetRun(ctx, uuid.NewString()); err != nil || missing != nil {
		t.Fatalf("GetRun of an unknown id = %v, %v", missing, err)
	}
}

func TestNewWithDB(t *testing.T) {
	// sql.Open does not dial, so no server is needed
	db, err := sql.Open("mysql", "ltesim:secret@tcp(127.0.0.1:1)/ltesim")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	s := NewWithDB(db)
	if s.db != db {
		t.Fatalf("store does not wrap the given database")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
