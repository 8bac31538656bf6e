package cohort

import (
	"strings"
	"testing"
)

func TestStartRejectsNonPositiveProcs(t *testing.T) {
	for _, procs := range []int{0, -1} {
		_, err := Start("ok", Options{Procs: procs})
		if err == nil {
			t.Fatalf("start with procs=%d succeeded", procs)
		}
		if !strings.Contains(err.Error(), "at least 1") {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestStartRejectsUnknownMethod(t *testing.T) {
	_, err := Start("ok", Options{Procs: 1, Method: "fork"})
	if err == nil {
		t.Fatal("start with method=fork succeeded")
	}
	if !strings.Contains(err.Error(), "unsupported start method") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStartRejectsUnregisteredEntry(t *testing.T) {
	_, err := Start("no-such-entry", Options{Procs: 1})
	if err == nil {
		t.Fatal("start with unregistered entry succeeded")
	}
	if !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStartCommandRejectsEmptyArgv(t *testing.T) {
	_, err := StartCommand(nil, Options{Procs: 1})
	if err == nil {
		t.Fatal("start with empty argv succeeded")
	}
}

func TestSpawnNormalizesUnknownMethod(t *testing.T) {
	if err := Spawn(testContext(t), "ok", Options{Procs: 1, Method: "forkserver"}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
}

func TestStartMethodValidate(t *testing.T) {
	if err := StartMethod("").validate(); err != nil {
		t.Fatalf("empty method rejected: %v", err)
	}
	if err := MethodSpawn.validate(); err != nil {
		t.Fatalf("spawn method rejected: %v", err)
	}
	if err := StartMethod("forkserver").validate(); err == nil {
		t.Fatal("forkserver method accepted")
	}
}
