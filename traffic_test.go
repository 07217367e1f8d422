package ltesim

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"
)

func testHandles(n int) (remote EndpointHandle, ues []EndpointHandle) {
	remote = EndpointHandle{ID: 1, Name: "remotehost", Role: RoleRemoteHost, Addr: netip.MustParseAddr("1.0.0.2")}
	addr := netip.MustParseAddr("7.0.0.1")
	for i := 0; i < n; i++ {
		addr = addr.Next()
		ues = append(ues, EndpointHandle{ID: EndpointID(i + 2), Name: fmt.Sprintf("ue-%d", i), Role: RoleUE, Addr: addr})
	}
	return remote, ues
}

func TestBuildTrafficPlanStreamFTP(t *testing.T) {
	cfg := DefaultScenarioConfig()
	remote, ues := testHandles(cfg.UEs)

	plan, err := BuildTrafficPlan(&cfg, ues, remote)
	if err != nil {
		t.Fatalf("BuildTrafficPlan: %v", err)
	}
	streams, bulks := plan.Families()
	if streams != 3 || bulks != 1 {
		t.Fatalf("families = %d streams, %d bulk; want 3, 1", streams, bulks)
	}
	if plan.Duration != cfg.SimTime {
		t.Fatalf("plan duration %s, want %s", plan.Duration, cfg.SimTime)
	}

	for idx, flow := range plan.Flows[:3] {
		if flow.Src != remote || flow.Dst != ues[idx] {
			t.Fatalf("stream %d runs %s -> %s, want remote -> ue-%d", idx, flow.Src, flow.Dst, idx)
		}
		if flow.Protocol != ProtoUDP || flow.Port != VideoPort {
			t.Fatalf("stream %d uses %s/%d", idx, flow.Protocol, flow.Port)
		}
		if flow.PacketSize != cfg.VideoPacketSize || flow.MaxPackets != cfg.VideoDataSize || flow.Interval != cfg.Interval {
			t.Fatalf("stream %d sizes = %+v", idx, flow)
		}
	}

	ftp := plan.Flows[3]
	if ftp.Src != ues[4] || ftp.Dst != ues[8] {
		t.Fatalf("bulk flow runs %s -> %s, want ue-4 -> ue-8", ftp.Src, ftp.Dst)
	}
	if ftp.Protocol != ProtoTCP || ftp.Port != FtpPort || ftp.MaxBytes != cfg.FtpDataSize {
		t.Fatalf("bulk flow = %+v", ftp)
	}

	for _, flow := range plan.Flows {
		if flow.Start != cfg.TrafficStart || flow.Stop != cfg.SimTime {
			t.Fatalf("flow %s scheduled [%s, %s)", flow.Name, flow.Start, flow.Stop)
		}
	}
}

func TestBuildTrafficPlanVariants(t *testing.T) {
	cases := []struct {
		variant Variant
		streams int
		bulks   int
	}{
		// 12 unused UEs: 3..14 without streams, 6 odd and 6 even
		{VariantBackground, 3 + 6, 6},
		// 10 unused UEs once 4 and 8 carry the bulk transfer: 6 odd, 4 even
		{VariantFull, 3 + 4, 1 + 6},
		{VariantStreamFTP, 3, 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.variant), func(t *testing.T) {
			cfg := DefaultScenarioConfig()
			cfg.Variant = tc.variant
			remote, ues := testHandles(cfg.UEs)

			plan, err := BuildTrafficPlan(&cfg, ues, remote)
			if err != nil {
				t.Fatalf("BuildTrafficPlan: %v", err)
			}
			streams, bulks := plan.Families()
			if streams != tc.streams || bulks != tc.bulks {
				t.Fatalf("families = %d/%d, want %d/%d", streams, bulks, tc.streams, tc.bulks)
			}
		})
	}
}

func TestBackgroundFlowsByParity(t *testing.T) {
	cfg := DefaultScenarioConfig()
	cfg.Variant = VariantBackground
	remote, ues := testHandles(cfg.UEs)

	plan, err := BuildTrafficPlan(&cfg, ues, remote)
	if err != nil {
		t.Fatalf("BuildTrafficPlan: %v", err)
	}
	for _, flow := range plan.Flows[cfg.StreamUEs:] {
		if flow.Dst != remote {
			t.Fatalf("background flow %s goes to %s", flow.Name, flow.Dst)
		}
		idx := int(flow.Src.ID) - 2
		if idx%2 == 1 && (flow.Kind != BulkFlow || flow.Port != BackgroundBulkPort) {
			t.Fatalf("odd UE %d got %s flow on port %d", idx, flow.Kind, flow.Port)
		}
		if idx%2 == 0 && (flow.Kind != StreamFlow || flow.Port != BackgroundDgrmPort) {
			t.Fatalf("even UE %d got %s flow on port %d", idx, flow.Kind, flow.Port)
		}
	}
}

func TestBuildTrafficPlanRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *ScenarioConfig)
	}{
		{"sender out of range", func(cfg *ScenarioConfig) { cfg.FtpSender = 15 }},
		{"receiver negative", func(cfg *ScenarioConfig) { cfg.FtpReceiver = -1 }},
		{"too many streams", func(cfg *ScenarioConfig) { cfg.StreamUEs = 16 }},
		{"sender is receiver", func(cfg *ScenarioConfig) { cfg.FtpReceiver = cfg.FtpSender }},
		{"start after duration", func(cfg *ScenarioConfig) { cfg.TrafficStart = cfg.SimTime }},
		{"unknown variant", func(cfg *ScenarioConfig) { cfg.Variant = "voice" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultScenarioConfig()
			tc.mutate(&cfg)
			remote, ues := testHandles(15)

			plan, err := BuildTrafficPlan(&cfg, ues, remote)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want a configuration error", err)
			}
			if len(plan.Flows) != 0 {
				t.Fatalf("rejected plan still returned %d flows", len(plan.Flows))
			}
		})
	}
}

func TestTrafficFlowStopBeforeStart(t *testing.T) {
	remote, ues := testHandles(1)
	flow := TrafficFlow{
		Name:       "video-0",
		Kind:       StreamFlow,
		Protocol:   ProtoUDP,
		Src:        remote,
		Dst:        ues[0],
		Port:       VideoPort,
		PacketSize: 1500,
		MaxPackets: 10,
		Interval:   20 * time.Millisecond,
		Start:      2 * time.Second,
		Stop:       1 * time.Second,
	}
	err := flow.Validate(10 * time.Second)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Validate = %v, want a configuration error", err)
	}

	if _, err := NewTrafficPlan(10*time.Second, flow); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("NewTrafficPlan = %v, want a configuration error", err)
	}

	flow.Stop = 3 * time.Second
	if err := flow.Validate(10 * time.Second); err != nil {
		t.Fatalf("Validate of a good flow: %v", err)
	}
	if err := flow.Validate(2500 * time.Millisecond); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("stop beyond duration accepted: %v", err)
	}
}

func TestTrafficPlanCopiesFlows(t *testing.T) {
	remote, ues := testHandles(1)
	flows := []TrafficFlow{{
		Name: "bulk", Kind: BulkFlow, Protocol: ProtoTCP, Src: ues[0], Dst: remote,
		Port: FtpPort, PacketSize: 200, MaxBytes: 1000, Start: 0, Stop: time.Second,
	}}
	plan, err := NewTrafficPlan(time.Second, flows...)
	if err != nil {
		t.Fatalf("NewTrafficPlan: %v", err)
	}
	flows[0].Name = "changed"
	if plan.Flows[0].Name != "bulk" {
		t.Fatalf("plan shares storage with its input")
	}
}
