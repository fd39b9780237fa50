package procexec_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"vrdl/internal/procexec"
)

func waitDone(t *testing.T, h procexec.Handle) procexec.Result {
	t.Helper()
	select {
	case <-h.Done():
		return h.Result()
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
		return procexec.Result{}
	}
}

func TestLaunchStreamsCombinedOutput(t *testing.T) {
	launcher := procexec.NewLauncher()
	var mu sync.Mutex
	var lines []string
	h, err := launcher.Launch(context.Background(), procexec.Spec{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo one; echo two 1>&2; printf 'three'"},
	}, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	res := waitDone(t, h)
	if !res.Success() {
		t.Fatalf("expected success, got %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(lines, []string{"one", "two", "three"}) {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestLaunchReportsExitCodeAndRedactedTail(t *testing.T) {
	launcher := procexec.NewLauncher()
	h, err := launcher.Launch(context.Background(), procexec.Spec{
		Binary:    "/bin/sh",
		Args:      []string{"-c", "echo first; echo 'pass=hunter2'; echo last; exit 3"},
		Secrets:   []string{"hunter2"},
		TailLines: 2,
	}, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	res := waitDone(t, h)
	if res.ExitCode != 3 || res.Cancelled || res.Success() {
		t.Fatalf("unexpected result %+v", res)
	}
	if !slices.Equal(res.Tail, []string{"pass=***", "last"}) {
		t.Fatalf("unexpected tail %q", res.Tail)
	}
}

func TestCancelMarksResultCancelled(t *testing.T) {
	launcher := procexec.NewLauncher(procexec.WithKillGrace(time.Second))
	h, err := launcher.Launch(context.Background(), procexec.Spec{
		Binary: "/bin/sh",
		Args:   []string{"-c", "sleep 30"},
	}, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	h.Cancel()
	h.Cancel()
	res := waitDone(t, h)
	if !res.Cancelled || res.Success() {
		t.Fatalf("expected cancelled result, got %+v", res)
	}
	if !h.Cancelled() {
		t.Fatal("handle should report cancellation")
	}
}

func TestContextCancellationStopsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	launcher := procexec.NewLauncher(procexec.WithKillGrace(time.Second))
	h, err := launcher.Launch(ctx, procexec.Spec{Binary: "/bin/sh", Args: []string{"-c", "sleep 30"}}, nil)
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	cancel()
	if res := waitDone(t, h); !res.Cancelled {
		t.Fatalf("expected cancelled result, got %+v", res)
	}
}

func TestDetachStopsLineDelivery(t *testing.T) {
	launcher := procexec.NewLauncher()
	var mu sync.Mutex
	var lines []string
	h, err := launcher.Launch(context.Background(), procexec.Spec{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo before; sleep 0.3; echo after"},
	}, func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(lines)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.Detach()
	res := waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(lines, []string{"before"}) {
		t.Fatalf("detached handle delivered %q", lines)
	}
	if !slices.Contains(res.Tail, "after") {
		t.Fatalf("tail should still capture output, got %q", res.Tail)
	}
}

func TestLaunchMissingBinary(t *testing.T) {
	launcher := procexec.NewLauncher()
	_, err := launcher.Launch(context.Background(), procexec.Spec{Binary: "/nonexistent/vrdl-tool"}, nil)
	if err == nil || !strings.Contains(err.Error(), "vrdl-tool") {
		t.Fatalf("expected start error naming the binary, got %v", err)
	}
	if _, err := launcher.Launch(context.Background(), procexec.Spec{}, nil); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
