package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaYAML = `
enums:
  CampaignStatus:
    values:
      0: UNSPECIFIED
      2: ENABLED
      3: PAUSED
structs:
  Campaign:
    fields:
      - name: id
        type: int64
      - name: name
        type: string
      - name: status
        type: CampaignStatus
resources:
  campaign:
    fields:
      - name: campaign
        type: Campaign
`

func writeTestFiles(t *testing.T) (schemaPath, scriptPath, replayDir string) {
	t.Helper()
	dir := t.TempDir()

	schemaPath = filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchemaYAML), 0o600))

	scriptPath = filepath.Join(dir, "campaigns.rql")
	script := "SELECT campaign.id AS id, campaign.status FROM campaign"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o600))

	replayDir = filepath.Join(dir, "replay")
	require.NoError(t, os.MkdirAll(replayDir, 0o755))
	records := `{"campaign": {"id": 101, "name": "Brand", "status": 2}}
{"campaign": {"id": 102, "name": "Generic", "status": 3}}
`
	require.NoError(t, os.WriteFile(filepath.Join(replayDir, "111.jsonl"), []byte(records), 0o600))
	return schemaPath, scriptPath, replayDir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reportql")
}

func TestPlanCmdPrintsResolvedPlan(t *testing.T) {
	schemaPath, scriptPath, _ := writeTestFiles(t)

	out, err := runCLI(t, "plan", "--schema", schemaPath, scriptPath)
	require.NoError(t, err)

	var doc planDoc
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "campaigns", doc.Script)
	assert.Equal(t, "campaign", doc.Resource)
	require.Len(t, doc.Columns, 2)
	assert.Equal(t, "id", doc.Columns[0].Column)
	assert.Equal(t, "int64", doc.Columns[0].Type)
	assert.Equal(t, "enum:CampaignStatus", doc.Columns[1].Type)
}

func TestPlanCmdRejectsUnknownField(t *testing.T) {
	schemaPath, _, _ := writeTestFiles(t)
	scriptPath := filepath.Join(t.TempDir(), "bad.rql")
	require.NoError(t, os.WriteFile(scriptPath, []byte("SELECT campaign.nope FROM campaign"), 0o600))

	_, err := runCLI(t, "plan", "--schema", schemaPath, scriptPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestRunCmdConsoleOutput(t *testing.T) {
	schemaPath, scriptPath, replayDir := writeTestFiles(t)

	out, err := runCLI(t, "run",
		"--schema", schemaPath,
		"--input", replayDir,
		"--account", "111",
		"--output", "console",
		scriptPath)
	require.NoError(t, err)
	assert.Contains(t, out, "account 111 (2 rows)")
	assert.Contains(t, out, "ENABLED")
	assert.Contains(t, out, "PAUSED")
}

func TestRunCmdCSVOutput(t *testing.T) {
	schemaPath, scriptPath, replayDir := writeTestFiles(t)
	outDir := t.TempDir()

	_, err := runCLI(t, "run",
		"--schema", schemaPath,
		"--input", replayDir,
		"--account", "111",
		"--output", "csv",
		"--output-dir", outDir,
		scriptPath)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "campaigns.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "id,campaign.status")
	assert.Contains(t, string(data), "101,ENABLED")
}

func TestRunCmdRequiresAccounts(t *testing.T) {
	schemaPath, scriptPath, replayDir := writeTestFiles(t)

	_, err := runCLI(t, "run",
		"--schema", schemaPath,
		"--input", replayDir,
		scriptPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--account")
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"start_date=2024-01-01", "limit=10"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"start_date": "2024-01-01", "limit": "10"}, params)

	_, err = parseParams([]string{"novalue"})
	require.Error(t, err)
}
