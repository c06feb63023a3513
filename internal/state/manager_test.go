package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oss-modbus/scanner"
)

func testConfig() scan.Config {
	return scan.Config{
		Host:               "127.0.0.1",
		Port:               502,
		SlaveID:            1,
		Timeout:            time.Second,
		Retries:            3,
		MaxUnitsPerRequest: 125,
	}
}

func testOptions() scan.Options {
	return scan.Options{
		Start:              0,
		End:                9,
		FunctionCodes:      []scan.FunctionCode{scan.HoldingRegisters},
		BatchingEnabled:    true,
		StreamingThreshold: 1000,
	}
}

func TestManager_SaveLoad_roundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	cfg := testConfig()
	opts := testOptions()
	st := scan.State{Total: 10, Processed: 5, Accessible: 4, StartTime: time.Now(), LastUpdate: time.Now()}
	records := []scan.DiscoveryRecord{
		scan.NewAccessibleWord(0, scan.HoldingRegisters, 42, time.Now()),
		scan.NewInaccessible(1, scan.HoldingRegisters, scan.NewReadError(scan.ErrIllegalDataAddress, 2, "no data"), time.Now()),
	}
	st.Accessible = 1

	if err := m.Save(cfg, opts, st, records); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !m.HasSaved() {
		t.Fatalf("HasSaved: want true after Save")
	}

	cp, ok, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatalf("Load: want ok=true")
	}
	if cp.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", cp.SchemaVersion, SchemaVersion)
	}
	if cp.Config != cfg {
		t.Errorf("Config round-trip mismatch: got %+v want %+v", cp.Config, cfg)
	}
	if len(cp.Records) != len(records) {
		t.Fatalf("Records len = %d, want %d", len(cp.Records), len(records))
	}
	if cp.Records[0].WordValue != 42 {
		t.Errorf("Records[0].WordValue = %d, want 42", cp.Records[0].WordValue)
	}
	if cp.Records[1].Err == nil || cp.Records[1].Err.Kind != scan.ErrIllegalDataAddress {
		t.Errorf("Records[1].Err = %+v, want IllegalDataAddress", cp.Records[1].Err)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if m.HasSaved() {
		t.Errorf("HasSaved: want false after Clear")
	}
	if _, ok, err := m.Load(); err != nil || ok {
		t.Errorf("Load after Clear: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestManager_Load_absent(t *testing.T) {
	m := New(t.TempDir())
	cp, ok, err := m.Load()
	if err != nil || ok || cp.SchemaVersion != "" {
		t.Errorf("Load on absent file = (%+v, %v, %v), want zero value, false, nil", cp, ok, err)
	}
}

func TestManager_Load_corruptFile_neverLeavesPartialWrite(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	if err := m.Save(testConfig(), testOptions(), scan.State{}, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(m.Path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	if _, _, err := m.Load(); err == nil {
		t.Errorf("Load on corrupt file: want error")
	}

	// No .tmp artifact should ever be left behind by Save or Load.
	entries, err := os.ReadDir(filepath.Dir(m.Path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("found leftover temp file %s", e.Name())
		}
	}
}

func TestValidate_incompatibleSchemaVersion(t *testing.T) {
	cp := Checkpoint{
		SchemaVersion: "0.1",
		Config:        testConfig(),
		Options:       testOptions(),
		State:         scan.State{},
		SavedAt:       time.Now(),
	}
	res := Validate(cp)
	if res.Valid() {
		t.Fatalf("Validate: want invalid for mismatched schema version")
	}
	found := false
	for _, e := range res.Errors {
		if e.Field == "schema_version" {
			found = true
		}
	}
	if !found {
		t.Errorf("Validate errors = %+v, want a schema_version error", res.Errors)
	}
}

func TestValidate_staleWarning(t *testing.T) {
	cp := Checkpoint{
		SchemaVersion: SchemaVersion,
		Config:        testConfig(),
		Options:       testOptions(),
		State:         scan.State{},
		SavedAt:       time.Now().Add(-48 * time.Hour),
	}
	res := Validate(cp)
	if !res.Valid() {
		t.Fatalf("Validate: want valid, got errors %+v", res.Errors)
	}
	if len(res.Warnings) == 0 {
		t.Errorf("Validate: want a staleness warning")
	}
}

func TestManager_BackupAndCleanup(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	if err := m.Save(testConfig(), testOptions(), scan.State{}, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var backups []string
	for i := 0; i < 3; i++ {
		path, err := m.Backup()
		if err != nil {
			t.Fatalf("Backup: %v", err)
		}
		backups = append(backups, path)
		time.Sleep(time.Millisecond) // ensure distinct timestamp suffixes
	}

	list, err := m.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListBackups len = %d, want 3", len(list))
	}

	if err := m.CleanupBackups(1); err != nil {
		t.Fatalf("CleanupBackups: %v", err)
	}
	list, err = m.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups after cleanup: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListBackups after cleanup len = %d, want 1", len(list))
	}
}

func TestManager_Info(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	if info, err := m.Info(); err != nil || info.Present {
		t.Fatalf("Info on empty dir = (%+v, %v), want Present=false, err=nil", info, err)
	}

	opts := testOptions()
	st := scan.State{Total: 10, Processed: 2, Accessible: 1}
	records := []scan.DiscoveryRecord{
		scan.NewAccessibleWord(0, scan.HoldingRegisters, 1, time.Now()),
		scan.NewInaccessible(1, scan.HoldingRegisters, scan.NewReadError(scan.ErrTimeout, 0, "timed out"), time.Now()),
	}
	if err := m.Save(testConfig(), opts, st, records); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := m.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !info.Present {
		t.Fatalf("Info.Present = false, want true")
	}
	if info.RecordCount != 2 || info.DiscoveredCount != 1 {
		t.Errorf("Info = %+v, want RecordCount=2 DiscoveredCount=1", info)
	}
	if info.ByFunctionCode[scan.HoldingRegisters] != 1 {
		t.Errorf("Info.ByFunctionCode[holding] = %d, want 1", info.ByFunctionCode[scan.HoldingRegisters])
	}
}
