package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fluxr/fluxr/internal/db"
	"github.com/fluxr/fluxr/internal/domain"
)

type cliEnv struct {
	dbPath   string
	imageDir string
	dir      string
}

// newCLIEnv points the CLI at a fresh, initialized database.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	env := &cliEnv{
		dbPath:   filepath.Join(home, "data", "fluxr.db"),
		imageDir: filepath.Join(home, "data", "images"),
		dir:      home,
	}
	t.Setenv("HOME", home)
	t.Setenv("FLUXR_DB_PATH", env.dbPath)
	t.Setenv("FLUXR_IMAGE_DIR", env.imageDir)
	t.Setenv("FLUXR_ACTOR", "tester")
	t.Setenv("FLUXR_LOG_LEVEL", "error")
	t.Setenv("FLUXR_OUTPUT", "")
	t.Setenv("FLUXR_REDIS_URL", "")
	t.Setenv("FLUXR_SYNC_STRATEGY", "")

	out := mustRun(t, "init")
	if !strings.Contains(out, "Database ready") {
		t.Fatalf("unexpected init output: %s", out)
	}
	return env
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("fluxr %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func showItem(t *testing.T, id string) itemDetail {
	t.Helper()
	var detail itemDetail
	if err := json.Unmarshal([]byte(mustRun(t, "show", id, "-o", "json")), &detail); err != nil {
		t.Fatalf("decode show output: %v", err)
	}
	return detail
}

func listIDs(t *testing.T, args ...string) []string {
	t.Helper()
	var items []domain.BoardItem
	out := mustRun(t, append([]string{"ls", "-o", "json"}, args...)...)
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode ls output: %v\n%s", err, out)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func seedDemo(t *testing.T) {
	t.Helper()
	mustRun(t, "product", "add", "demo-app", "--name", "Demo App")
	mustRun(t, "add", "feature", "demo-app", "Login", "--priority", "must-have")
	mustRun(t, "add", "feature", "demo-app", "Signup")
	mustRun(t, "add", "bug", "demo-app", "Crash on save", "--status", "in_progress", "--priority", "must-have")
	mustRun(t, "add", "task", "demo-app", "Write docs", "--status", "completed")
	mustRun(t, "add", "page", "demo-app", "Checkout", "--route", "checkout/pay")
	mustRun(t, "add", "page", "demo-app", "Profile", "--route", "/account/profile")
}

func TestInitIsIdempotent(t *testing.T) {
	env := newCLIEnv(t)
	out := mustRun(t, "init")
	if strings.Contains(out, "applied") {
		t.Errorf("second init should apply nothing: %s", out)
	}
	if _, err := os.Stat(env.imageDir); err != nil {
		t.Errorf("image dir not created: %v", err)
	}
}

func TestProducts(t *testing.T) {
	newCLIEnv(t)

	out := mustRun(t, "product", "add", "Demo App", "--webhooks", "http://example.com/hook/{item_id}")
	if out != "Created product P-00001 (demo-app)\n" {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := runCLI(t, "product", "add", "demo-app"); err == nil {
		t.Error("expected duplicate slug error")
	}
	if _, err := runCLI(t, "product", "add", "other", "--webhooks", "ftp://nope"); err == nil {
		t.Error("expected invalid webhook error")
	}

	var products []domain.Product
	if err := json.Unmarshal([]byte(mustRun(t, "product", "ls", "-o", "json")), &products); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(products) != 1 || products[0].Slug != "demo-app" {
		t.Fatalf("unexpected products: %+v", products)
	}

	out = mustRun(t, "product", "hooks", "demo-app")
	if !strings.HasPrefix(out, "Removed webhooks from P-00001") {
		t.Errorf("unexpected hooks output: %q", out)
	}
	table := mustRun(t, "product", "ls")
	if !strings.Contains(table, "demo-app") || !strings.Contains(table, "HOOKS") {
		t.Errorf("unexpected table:\n%s", table)
	}
}

func TestAddAndList(t *testing.T) {
	newCLIEnv(t)
	seedDemo(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"all in board order", []string{"demo-app"}, []string{"F-00001", "F-00002", "PG-00001", "PG-00002", "B-00001", "T-00001"}},
		{"by type", []string{"demo-app", "--type", "bug,task"}, []string{"B-00001", "T-00001"}},
		{"by priority", []string{"P-00001", "--priority", "must-have"}, []string{"F-00001", "B-00001"}},
		{"type and priority", []string{"demo-app", "-t", "feature", "-p", "not-prioritized"}, []string{"F-00002"}},
		{"by status", []string{"demo-app", "--status", "in_progress,completed"}, []string{"B-00001", "T-00001"}},
		{"route glob", []string{"demo-app", "--route", "/checkout/**"}, []string{"PG-00001"}},
		{"route wildcard", []string{"demo-app", "--route", "/*/profile"}, []string{"PG-00002"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, listIDs(t, tt.args...)); diff != "" {
				t.Errorf("ls %v (-want +got):\n%s", tt.args, diff)
			}
		})
	}

	if _, err := runCLI(t, "ls", "demo-app", "--type", "epic"); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := runCLI(t, "ls", "missing"); !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	table := mustRun(t, "ls", "demo-app", "-o", "tsv")
	if !strings.HasPrefix(table, "ID\tKIND\tSTATUS") {
		t.Errorf("unexpected tsv:\n%s", table)
	}
}

func TestAddValidation(t *testing.T) {
	newCLIEnv(t)
	mustRun(t, "product", "add", "demo-app")

	for _, args := range [][]string{
		{"add", "epic", "demo-app", "X"},
		{"add", "feature", "demo-app", "X", "--status", "done"},
		{"add", "feature", "demo-app", "X", "--priority", "urgent"},
		{"add", "feature", "demo-app", "X", "--route", "/x"},
		{"add", "feature", "demo-app", "   "},
		{"add", "feature", "nope", "X"},
	} {
		if _, err := runCLI(t, args...); err == nil {
			t.Errorf("fluxr %s: expected error", strings.Join(args, " "))
		}
	}
}

func TestBoard(t *testing.T) {
	newCLIEnv(t)
	seedDemo(t)

	out := mustRun(t, "board", "demo-app")
	for _, want := range []string{
		"P-00001 demo-app (filter: none)",
		"Not Started (4)",
		"In Progress (1)",
		"Completed (1)",
		"  0. F-00001   feature  must-have        Login",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("board output missing %q:\n%s", want, out)
		}
	}

	filtered := mustRun(t, "board", "demo-app", "--type", "bug")
	if !strings.Contains(filtered, "(filter: type=bug)") || !strings.Contains(filtered, "Not Started (0)") {
		t.Errorf("unexpected filtered board:\n%s", filtered)
	}

	var view struct {
		ActiveFilter int `json:"active_filter_count"`
		Columns      []struct {
			ID    string             `json:"id"`
			Items []domain.BoardItem `json:"items"`
		} `json:"columns"`
	}
	if err := json.Unmarshal([]byte(mustRun(t, "board", "demo-app", "-p", "must-have", "-t", "feature", "-o", "json")), &view); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if view.ActiveFilter != 2 || len(view.Columns) != 3 || len(view.Columns[0].Items) != 1 {
		t.Errorf("unexpected board json: %+v", view)
	}
}

func TestMove(t *testing.T) {
	newCLIEnv(t)
	seedDemo(t)

	out := mustRun(t, "mv", "F-00002", "--to", "in_progress", "--index", "0")
	if !strings.HasPrefix(out, "Moved F-00002 to in_progress") {
		t.Errorf("unexpected mv output: %q", out)
	}
	got := showItem(t, "F-00002")
	if got.Status != domain.StatusInProgress || got.UpdatedBy != "tester" {
		t.Errorf("unexpected item after move: %+v", got)
	}
	if diff := cmp.Diff([]string{"F-00002", "B-00001"}, listIDs(t, "demo-app", "--status", "in_progress")); diff != "" {
		t.Errorf("in_progress column (-want +got):\n%s", diff)
	}

	// Appending is the default.
	mustRun(t, "mv", "f-00001", "--to", "in_progress", "--as", "alice")
	if diff := cmp.Diff([]string{"F-00002", "B-00001", "F-00001"}, listIDs(t, "demo-app", "--status", "in_progress")); diff != "" {
		t.Errorf("in_progress column after append (-want +got):\n%s", diff)
	}
	if got := showItem(t, "F-00001"); got.UpdatedBy != "alice" {
		t.Errorf("UpdatedBy = %q, want alice", got.UpdatedBy)
	}

	if _, err := runCLI(t, "mv", "F-00001", "--to", "done"); err == nil {
		t.Error("expected error for unknown column")
	}
	if _, err := runCLI(t, "mv", "F-00001"); err == nil {
		t.Error("expected error without --to")
	}
	if _, err := runCLI(t, "mv", "F-00099", "--to", "completed"); !domain.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMoveDryRun(t *testing.T) {
	newCLIEnv(t)
	seedDemo(t)

	out := mustRun(t, "mv", "T-00001", "--to", "not_started", "--index", "0", "--dry-run")
	for _, want := range []string{"--- before", "+++ after", "-Not Started (4)", "+Not Started (5)", "+  0. T-00001"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff missing %q:\n%s", want, out)
		}
	}
	if got := showItem(t, "T-00001"); got.Status != domain.StatusCompleted || got.ETag != 1 {
		t.Errorf("dry run wrote the item: %+v", got)
	}

	out = mustRun(t, "mv", "T-00001", "--to", "completed", "--index", "0", "--dry-run")
	if out != "No change\n" {
		t.Errorf("unexpected dry run output for a no-op: %q", out)
	}
}

func TestSetAndApply(t *testing.T) {
	env := newCLIEnv(t)
	seedDemo(t)

	out := mustRun(t, "set", "F-00001", "name=Sign in", "priority=nice-to-have")
	if out != "Updated F-00001 (etag 2)\n" {
		t.Errorf("unexpected set output: %q", out)
	}
	got := showItem(t, "F-00001")
	if got.Name != "Sign in" || got.Priority != domain.PriorityNiceToHave {
		t.Errorf("unexpected item after set: %+v", got)
	}

	if _, err := runCLI(t, "set", "F-00001", "name=Stale", "--if-match", "1"); err == nil {
		t.Error("expected etag mismatch")
	}
	for _, bad := range [][]string{
		{"set", "F-00001", "colour=red"},
		{"set", "F-00001", "status=done"},
		{"set", "F-00001", "noequals"},
	} {
		if _, err := runCLI(t, bad...); err == nil {
			t.Errorf("fluxr %s: expected error", strings.Join(bad, " "))
		}
	}

	doc := filepath.Join(env.dir, "doc.md")
	if err := os.WriteFile(doc, []byte("---\nname: From markdown\nstatus: completed\nif_match: 2\n---\nLonger description.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mustRun(t, "apply", "F-00001", doc, "--dry-run")
	if got := showItem(t, "F-00001"); got.ETag != 2 {
		t.Errorf("apply --dry-run wrote the item: %+v", got)
	}
	mustRun(t, "apply", "F-00001", doc)
	got = showItem(t, "F-00001")
	if got.Name != "From markdown" || got.Status != domain.StatusCompleted || !strings.Contains(got.Description, "Longer description.") {
		t.Errorf("unexpected item after apply: %+v", got)
	}

	yamlDoc := filepath.Join(env.dir, "doc.yaml")
	if err := os.WriteFile(yamlDoc, []byte("priority: bogus\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "apply", "F-00001", yamlDoc); err == nil {
		t.Error("expected validation error for bad priority")
	}
}

func TestImageAndRemove(t *testing.T) {
	env := newCLIEnv(t)
	seedDemo(t)

	png := filepath.Join(env.dir, "shot.png")
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\nfake"), 0644); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, "image", "B-00001", png)
	if !strings.HasPrefix(out, "Set image of B-00001: ") {
		t.Errorf("unexpected image output: %q", out)
	}
	detail := showItem(t, "B-00001")
	if detail.Image == "" {
		t.Fatal("image path not recorded")
	}
	stored := filepath.Join(env.imageDir, detail.Image)
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("stored image missing: %v", err)
	}

	if _, err := runCLI(t, "image", "T-00001", png); err == nil {
		t.Error("tasks do not carry images")
	}

	out = mustRun(t, "rm", "B-00001", "T-00001")
	if out != "Removed B-00001\nRemoved T-00001\n" {
		t.Errorf("unexpected rm output: %q", out)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Errorf("image should be deleted with its item, stat err = %v", err)
	}
	if _, err := runCLI(t, "show", "B-00001"); !domain.IsNotFound(err) {
		t.Errorf("expected not found after rm, got %v", err)
	}
	if _, err := runCLI(t, "rm", "F-00001", "F-00099"); err == nil {
		t.Error("expected error for unknown item")
	}
	if got := showItem(t, "F-00001"); got.ID != "F-00001" {
		t.Error("a failed selector must not delete anything")
	}
	if _, err := runCLI(t, "rm", "F-00001", "F-00002", "--if-match", "1"); err == nil {
		t.Error("--if-match with several items should fail")
	}
}

func TestLog(t *testing.T) {
	newCLIEnv(t)
	seedDemo(t)
	mustRun(t, "set", "F-00001", "name=Sign in")

	var page eventPage
	if err := json.Unmarshal([]byte(mustRun(t, "log", "F-00001", "-o", "json")), &page); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(page.Events) != 2 || page.Events[0].EventType != "item.updated" || page.NextCursor != "" {
		t.Errorf("unexpected events: %+v", page)
	}

	if err := json.Unmarshal([]byte(mustRun(t, "log", "-n", "3", "-o", "json")), &page); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(page.Events) != 3 || page.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor: %+v", page)
	}
	first := page.Events[2].ID
	if err := json.Unmarshal([]byte(mustRun(t, "log", "-n", "3", "--cursor", page.NextCursor, "-o", "json")), &page); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(page.Events) == 0 || page.Events[0].ID >= first {
		t.Errorf("second page should continue below event %d: %+v", first, page.Events)
	}

	table := mustRun(t, "log", "F-00001")
	if !strings.Contains(table, "item.created") || !strings.Contains(table, "tester") {
		t.Errorf("unexpected log table:\n%s", table)
	}
}

func TestDoctor(t *testing.T) {
	env := newCLIEnv(t)
	seedDemo(t)

	out := mustRun(t, "doctor")
	if !strings.Contains(out, "Status: ok") {
		t.Errorf("unexpected doctor output:\n%s", out)
	}

	database, err := db.Open(env.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = database.Exec(`
		INSERT INTO features (uuid, id, product_uuid, name, implementation_status, image_path, created_by, updated_by)
		SELECT 'drift-uuid', 'F-00042', uuid, 'Imported', 'not_started', 'feature/drift-uuid/gone.png', 'import', 'import' FROM products LIMIT 1
	`)
	database.Close()
	if err != nil {
		t.Fatalf("insert drifted feature: %v", err)
	}

	out = mustRun(t, "doctor", "-v")
	for _, want := range []string{"1 sequence(s) behind stored IDs", "features: sequence 2, max id 42", "1 of 1 image(s) missing", "Status: warning"} {
		if !strings.Contains(out, want) {
			t.Errorf("doctor output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "doctor", "--fix")
	if !strings.Contains(out, "Realigned 1 sequence(s)") {
		t.Errorf("unexpected fix output:\n%s", out)
	}
	out = mustRun(t, "add", "feature", "demo-app", "After fix")
	if !strings.Contains(out, "F-00043") {
		t.Errorf("sequence not realigned: %q", out)
	}
}

func TestExportRoundTrip(t *testing.T) {
	env := newCLIEnv(t)
	seedDemo(t)

	file := filepath.Join(env.dir, "board.json")
	mustRun(t, "export", "demo-app", "-f", file)
	out := mustRun(t, "export", "--verify", file)
	if !strings.Contains(out, "P-00001 (6 items) sha256:") {
		t.Errorf("unexpected verify output: %q", out)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, bytes.Replace(data, []byte("Login"), []byte("Logout"), 1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "export", "--verify", file); err == nil {
		t.Error("expected verify to reject an edited snapshot")
	}
	if _, err := runCLI(t, "export"); err == nil {
		t.Error("expected error without a product")
	}
}

func TestVersion(t *testing.T) {
	newCLIEnv(t)

	out := mustRun(t, "version")
	if !strings.HasPrefix(out, "fluxr version dev") {
		t.Errorf("unexpected version output: %q", out)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(mustRun(t, "version", "-o", "json")), &info); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if info.Version != Version || len(info.Columns) != 3 {
		t.Errorf("unexpected version info: %+v", info)
	}
}

func TestPendingMigrationsBlockCommands(t *testing.T) {
	env := newCLIEnv(t)

	database, err := db.Open(env.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = database.Exec("DELETE FROM schema_migrations WHERE version = (SELECT MAX(version) FROM schema_migrations)")
	database.Close()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "product", "ls"); err == nil || !strings.Contains(err.Error(), "requires migration") {
		t.Errorf("expected migration error, got %v", err)
	}
	if _, err := runCLI(t, "doctor"); err == nil {
		t.Error("doctor should report pending migrations as an error")
	}
}
