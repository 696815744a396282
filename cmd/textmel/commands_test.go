package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/features"
	"github.com/example/go-textmel/internal/testutil"
)

// corpus swaps in a memory filesystem holding five clips that corpusFlags
// point the CLI at.
func corpus(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	texts := map[string]string{}
	for i := range 5 {
		p := fmt.Sprintf("wavs/clip%d.wav", i)
		testutil.WriteWAV(t, fs, "/corpus/"+p, testutil.Sine(180+40*float64(i), 16000, 3000+500*i, 0.3), 16000)
		texts[p] = fmt.Sprintf("Clip number %d.", i)
	}
	testutil.WriteLJManifest(t, fs, "/corpus/metadata.csv", texts)

	origFs, origCfg := appFs, activeCfg
	t.Cleanup(func() {
		appFs = origFs
		activeCfg = origCfg
	})
	appFs = fs

	// No textmel.yaml is picked up from the package directory.
	t.Chdir(t.TempDir())

	return fs
}

var corpusFlags = []string{
	"--log-level", "error",
	"--data-path", "/corpus/metadata.csv",
	"--data-sampling-rate", "16000",
	"--stft-filter-length", "512",
	"--stft-win-length", "512",
	"--stft-hop-length", "128",
	"--stft-n-mel-channels", "20",
	"--batch-size", "2",
	"--workers", "2",
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, corpusFlags...))

	err := root.Execute()

	return out.String() + errOut.String(), err
}

func TestDumpMels_WritesEveryClip(t *testing.T) {
	fs := corpus(t)

	out, err := run(t, "dump-mels", "--out", "/mels")
	if err != nil {
		t.Fatalf("dump-mels: %v\n%s", err, out)
	}
	if !strings.Contains(out, "wrote 5 feature files") {
		t.Errorf("unexpected output: %s", out)
	}

	for i := range 5 {
		p := features.CachePath(fmt.Sprintf("/mels/wavs/clip%d.wav", i))
		m, err := features.LoadCache(fs, p)
		if err != nil {
			t.Fatalf("LoadCache(%s): %v", p, err)
		}
		if m.Channels != 20 || m.Frames != 1+(3000+500*i)/128 {
			t.Errorf("%s shape = [%d × %d]", p, m.Channels, m.Frames)
		}
	}

	// A second run leaves existing files alone.
	out, err = run(t, "dump-mels", "--out", "/mels")
	if err != nil {
		t.Fatalf("second dump-mels: %v", err)
	}
	if !strings.Contains(out, "wrote 0 feature files") {
		t.Errorf("expected nothing rewritten: %s", out)
	}
}

func TestDumpMels_ThenCacheModeLoads(t *testing.T) {
	corpus(t)

	// Writing next to the audio makes the corpus usable in cache mode.
	if out, err := run(t, "dump-mels", "--out", "/corpus"); err != nil {
		t.Fatalf("dump-mels: %v\n%s", err, out)
	}

	out, err := run(t, "inspect", "--index", "0", "--data-load-mel-from-disk")
	if err != nil {
		t.Fatalf("inspect in cache mode: %v\n%s", err, out)
	}
	if !strings.Contains(out, "shape:       [20 ") {
		t.Errorf("unexpected inspect output: %s", out)
	}
}

func TestDumpMels_RequiresOutAndAudioMode(t *testing.T) {
	corpus(t)

	if _, err := run(t, "dump-mels"); err == nil {
		t.Error("expected error without --out")
	}
	if _, err := run(t, "dump-mels", "--out", "/mels", "--data-load-mel-from-disk"); err == nil {
		t.Error("expected error in cache mode")
	}
}

func TestInspect_Batch(t *testing.T) {
	corpus(t)

	out, err := run(t, "inspect", "--json", "--n-frames-per-step", "4")
	if err != nil {
		t.Fatalf("inspect: %v\n%s", err, out)
	}

	var r batchReport
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}

	if r.Size != 2 || len(r.Filenames) != 2 {
		t.Errorf("batch size = %d, filenames = %v", r.Size, r.Filenames)
	}
	if got := r.Shapes["padded_mel"]; len(got) != 3 || got[1] != 20 || got[2]%4 != 0 {
		t.Errorf("padded_mel shape = %v", got)
	}
	if r.InputLengths[0] < r.InputLengths[1] {
		t.Errorf("input lengths not descending: %v", r.InputLengths)
	}
}

func TestInspect_SampleOutOfRange(t *testing.T) {
	corpus(t)

	if _, err := run(t, "inspect", "--index", "99"); err == nil {
		t.Error("expected error for an out-of-range index")
	}
}

func TestBench_JSON(t *testing.T) {
	corpus(t)

	out, err := run(t, "bench", "--batches", "3", "--format", "json")
	if err != nil {
		t.Fatalf("bench: %v\n%s", err, out)
	}

	var r struct {
		Runs []struct {
			Frames  int64   `json:"frames"`
			AudioMS float64 `json:"audio_ms"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(r.Runs) != 3 {
		t.Fatalf("got %d runs; want 3", len(r.Runs))
	}
	for i, rr := range r.Runs {
		if rr.Frames <= 0 || rr.AudioMS <= 0 {
			t.Errorf("run %d: frames=%d audio_ms=%v", i, rr.Frames, rr.AudioMS)
		}
	}
}

func TestBench_FlagValidation(t *testing.T) {
	corpus(t)

	if _, err := run(t, "bench", "--batches", "0"); err == nil {
		t.Error("expected error for --batches 0")
	}
	if _, err := run(t, "bench", "--format", "xml"); err == nil {
		t.Error("expected error for --format xml")
	}
}

func TestDoctor(t *testing.T) {
	fs := corpus(t)

	out, err := run(t, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "doctor checks passed") {
		t.Errorf("unexpected output: %s", out)
	}

	if err := fs.Remove("/corpus/wavs/clip3.wav"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	out, err = run(t, "doctor")
	if err == nil {
		t.Fatal("expected doctor to fail with a missing clip")
	}
	if !strings.Contains(out, "FAIL: file /corpus/wavs/clip3.wav") {
		t.Errorf("missing failure line: %s", out)
	}
}

func TestCommands_RequireManifest(t *testing.T) {
	corpus(t)

	for _, name := range []string{"dump-mels", "inspect", "bench", "doctor"} {
		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{name, "--log-level", "error"})

		if err := root.Execute(); err == nil {
			t.Errorf("%s: expected error without --data-path", name)
		}
	}
}
