package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unrat/internal/dotnet"
	"unrat/internal/dotnet/dntest"
)

func op(code byte, tok uint32) []byte {
	return append([]byte{code}, binary.LittleEndian.AppendUint32(nil, tok)...)
}

func il(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return append(out, 0x2A)
}

// writeSample builds a plain-config assembly: a .cctor storing eight
// unencrypted fields, plus a Main with one call.
func writeSample(t *testing.T, dir string) string {
	t.Helper()
	b := dntest.New()
	install := b.AddField("Install", nil)
	bdos := b.AddField("BDOS", nil)
	port := b.AddField("Port", nil)
	delay := b.AddField("Delay", nil)
	paste := b.AddField("Pastebin", nil)
	host := b.AddField("Hosts", nil)
	mutex := b.AddField("Mutex", nil)
	version := b.AddField("Version", nil)
	uHost := b.AddUserString("c2.example.com;10.0.0.7")
	uMutex := b.AddUserString("AsyncMutex_6SI8OkPnk")
	uVersion := b.AddUserString("0.5.8")
	exit := b.AddMemberRef("Exit")
	b.AddMethod("Main", il(
		[]byte{0x16}, []byte{0x2C, 0x05}, // ldc.i4.0; brfalse.s +5
		op(0x28, exit),
	))
	b.AddMethod(".cctor", il(
		[]byte{0x17}, op(0x80, install),
		[]byte{0x16}, op(0x80, bdos),
		op(0x20, 4782), op(0x80, port),
		[]byte{0x19}, op(0x80, delay),
		[]byte{0x14}, op(0x80, paste),
		op(0x72, uHost), op(0x80, host),
		op(0x72, uMutex), op(0x80, mutex),
		op(0x72, uVersion), op(0x80, version),
	))
	path := filepath.Join(dir, "sample.exe")
	require.NoError(t, os.WriteFile(path, b.Build(), 0644))
	return path
}

// run executes the CLI in an empty working directory so no unrat.yaml is
// picked up.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseJSON(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	stdout, _, err := run(t, "parse", sample)
	require.NoError(t, err)

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &docs))
	require.Len(t, docs, 1)
	d := docs[0]
	assert.Equal(t, sample, d["file_path"])
	assert.Equal(t, "No match", d["yara_possible_family"])
	assert.Equal(t, "None", d["key"])
	assert.Len(t, d["sha256"], 64)

	cfg := d["config"].(map[string]any)
	assert.Equal(t, true, cfg["Install"])
	assert.Equal(t, float64(4782), cfg["Port"])
	assert.Equal(t, "null", cfg["Pastebin"])
	assert.Equal(t, "c2.example.com;10.0.0.7", cfg["Hosts"])
	assert.Less(t, strings.Index(stdout, `"Install"`), strings.Index(stdout, `"Hosts"`))
}

func TestParseRemap(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	stdout, _, err := run(t, "parse", "--remap", sample)
	require.NoError(t, err)

	var docs []struct {
		Config map[string]any `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &docs))
	cfg := docs[0].Config
	assert.Equal(t, float64(4782), cfg["Ports"])
	assert.NotContains(t, cfg, "Port")
	assert.Equal(t, []any{"c2.example.com", "10.0.0.7"}, cfg["Hosts"])
}

func TestParseKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir)
	missing := filepath.Join(dir, "missing.exe")
	notPE := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notPE, []byte("hello"), 0644))

	stdout, _, err := run(t, "parse", "-j", "3", missing, sample, notPE)
	require.NoError(t, err, "per-file failures are reported, not returned")

	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &docs))
	require.Len(t, docs, 3)
	assert.Equal(t, missing, docs[0]["file_path"])
	assert.Equal(t, "Exception encountered for "+missing+": extract: file not found", docs[0]["config"])
	assert.Equal(t, "", docs[0]["key"])
	assert.Equal(t, sample, docs[1]["file_path"])
	assert.IsType(t, map[string]any{}, docs[1]["config"])
	assert.Equal(t, notPE, docs[2]["file_path"])
	assert.Contains(t, docs[2]["config"], "Exception encountered for "+notPE)
}

func TestParseYAMLToFile(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir)
	out := filepath.Join(dir, "out", "reports.yaml")
	stdout, _, err := run(t, "parse", "--format", "yaml", "-o", out, sample)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "yara_possible_family: No match")
	assert.Contains(t, string(data), "Install: true")
}

func TestParseConfigFile(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "unrat.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("format: text\nremap: true\n"), 0644))

	stdout, _, err := run(t, "--config", cfgPath, "parse", sample)
	require.NoError(t, err)
	assert.Contains(t, stdout, "family: No match")
	assert.Contains(t, stdout, "Ports")
	assert.Contains(t, stdout, "c2.example.com, 10.0.0.7")
}

func TestParseUnknownDecryptor(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	_, _, err := run(t, "parse", "--decryptors", "rc4", sample)
	assert.ErrorContains(t, err, "rc4")
}

func TestParseDebugLogging(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	_, stderr, err := run(t, "parse", "-d", sample)
	require.NoError(t, err)
	assert.Contains(t, stderr, "attempting brute force at .cctor")
	assert.Contains(t, stderr, "config extracted")
}

func TestSignal(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	stdout, _, err := run(t, "signal", sample)
	require.NoError(t, err)

	var docs []struct {
		Family  string `json:"family"`
		Signals struct {
			Fields []struct {
				Field      string   `json:"field"`
				Categories []string `json:"categories"`
			} `json:"fields"`
			Severity string `json:"severity"`
		} `json:"signals"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "high", docs[0].Signals.Severity)
	require.Len(t, docs[0].Signals.Fields, 1)
	assert.Equal(t, "Hosts", docs[0].Signals.Fields[0].Field)
	assert.Contains(t, docs[0].Signals.Fields[0].Categories, "host")
}

func TestSignalDOT(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir)
	out := filepath.Join(dir, "graphs")
	_, stderr, err := run(t, "signal", "--remap", "--dot", out, sample, sample)
	require.NoError(t, err)
	assert.Contains(t, stderr, "signal: 2 samples, 2 shared values")

	data, err := os.ReadFile(filepath.Join(out, "indicators.dot"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), `label="c2.example.com"`))
	assert.Contains(t, string(data), ">No match<")
}

func TestScan(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	stdout, _, err := run(t, "scan", sample)
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, float64(2), info["methods"])
	assert.Equal(t, float64(1), info["static_constructors"])
	assert.Equal(t, "No match", info["family"])

	stdout, _, err = run(t, "scan", "--format", "text", sample)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Methods:  2 (1 static constructors)")
	assert.Contains(t, stdout, "#Strings")
}

func TestMethods(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	stdout, _, err := run(t, "methods", "--format", "text", "--name", ".cctor", sample)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], ".cctor"), lines[0])
	assert.True(t, strings.HasPrefix(lines[0], "0x06000002"), lines[0])
}

func TestDisasm(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	stdout, _, err := run(t, "disasm", "--method", ".cctor", sample)
	require.NoError(t, err)
	assert.Contains(t, stdout, "stsfld")
	assert.Contains(t, stdout, "stsfld Install")
	assert.Contains(t, stdout, `; "c2.example.com;10.0.0.7"`)

	out := filepath.Join(t.TempDir(), "dis")
	_, _, err = run(t, "disasm", "--bin", "-o", out, sample)
	require.NoError(t, err)
	txt, err := filepath.Glob(filepath.Join(out, "asm", "*", "*.txt"))
	require.NoError(t, err)
	assert.Len(t, txt, 2)
	bins, err := filepath.Glob(filepath.Join(out, "asm", "*", "*.bin"))
	require.NoError(t, err)
	assert.Len(t, bins, 2)

	_, _, err = run(t, "disasm", "--method", "Nope", sample)
	assert.Error(t, err)
}

func TestGraph(t *testing.T) {
	sample := writeSample(t, t.TempDir())
	out := filepath.Join(t.TempDir(), "graphs")
	_, stderr, err := run(t, "graph", "-o", out, sample)
	require.NoError(t, err)
	assert.Contains(t, stderr, "graph: 2 methods, 1 edges")

	for _, name := range []string{"callgraph.dot", "cfg.dot"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.NotEmpty(t, data, name)
	}

	_, _, err = run(t, "graph", sample)
	assert.ErrorContains(t, err, "--out is required")
}

func TestAsmPath(t *testing.T) {
	assert.Equal(t, "_global/Main_06000001", asmPath(dotnet.MethodDef{Token: 0x06000001, Name: "Main"}))
	assert.Equal(t, "Client.Settings/.cctor_06000002",
		asmPath(dotnet.MethodDef{Token: 0x06000002, Name: ".cctor", Owner: "Client.Settings"}))
	assert.Equal(t, "Client.Settings_Inner/_Run_b__0_0600000a",
		asmPath(dotnet.MethodDef{Token: 0x0600000A, Name: "<Run>b__0", Owner: "Client.Settings/Inner"}))
}
