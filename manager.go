package payflow

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ---------------------------------------------------------------
//  Bitcoin Core Node Management
// ---------------------------------------------------------------

// NodeManager drives a local bitcoind through a manager script that accepts
// "start", "stop" and "status" commands.
type NodeManager struct {
	// mu serializes script invocations so concurrent start/stop calls
	// cannot interleave.
	mu sync.Mutex

	scriptPath string
}

// NewNodeManager returns a manager for the script at scriptPath. An empty
// path falls back to DefaultScriptPath.
func NewNodeManager(scriptPath string) *NodeManager {
	if scriptPath == "" {
		scriptPath = DefaultScriptPath()
	}
	return &NodeManager{scriptPath: scriptPath}
}

// DefaultScriptPath locates scripts/bitcoind_manager.sh under the project
// root.
//
// The project root is found by walking up from the working directory until
// a go.mod is found. If none is found the working directory is used.
func DefaultScriptPath() string {
	workDir, _ := os.Getwd()
	for dir := workDir; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			workDir = dir
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(workDir, "scripts", "bitcoind_manager.sh")
}

// ScriptPath returns the script the manager runs.
func (m *NodeManager) ScriptPath() string {
	return m.scriptPath
}

// Start launches the regtest node.
//
// Returns:
//   - error: if the script is missing or exits non-zero
//
// Example:
//
//	mgr := payflow.NewNodeManager("")
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatalf("Failed to start Bitcoin node: %v", err)
//	}
//	defer mgr.Stop(context.Background())
func (m *NodeManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.scriptPath); os.IsNotExist(err) {
		return fmt.Errorf("bitcoind manager script not found at: %s", m.scriptPath)
	}

	output, err := m.run(ctx, "start")
	if err != nil {
		return fmt.Errorf("failed to start bitcoind (script: %s): %s", m.scriptPath, output)
	}
	return nil
}

// Stop shuts the node down and lets the script clean up its data directory.
func (m *NodeManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.run(ctx, "stop")
	if err != nil {
		return fmt.Errorf("failed to stop bitcoind: %s", output)
	}
	return nil
}

// IsRunning reports whether the script's status output says the node is
// running.
func (m *NodeManager) IsRunning(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.run(ctx, "status")
	if err != nil {
		return false, fmt.Errorf("failed to check bitcoind status: %s", output)
	}
	return strings.Contains(output, "is running"), nil
}

func (m *NodeManager) run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "bash", m.scriptPath, command)
	output, err := cmd.CombinedOutput()
	return string(output), err
}
