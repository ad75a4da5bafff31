//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/encodeous/strand/state"
	"github.com/testcontainers/testcontainers-go"
	tcnetwork "github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	ImageName   = "strand-debug:latest"
	WaitTimeout = 2 * time.Minute
	ConfigPath  = "/app/config/strand.yaml"
)

// SubnetAllocator hands out distinct /24s so parallel tests never share a docker network.
type SubnetAllocator struct {
	mu   sync.Mutex
	next int
}

var GlobalSubnetAllocator = &SubnetAllocator{}

// Allocate returns a subnet and its gateway, e.g. 172.28.3.0/24 and 172.28.3.1.
func (a *SubnetAllocator) Allocate() (string, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := a.next
	a.next++
	return fmt.Sprintf("172.28.%d.0/24", idx), fmt.Sprintf("172.28.%d.1", idx)
}

type Network struct {
	*testcontainers.DockerNetwork
	Subnet  string
	Gateway string
}

// Host returns the address with the given host byte on the network, e.g. Host(10) -> 172.28.3.10.
func (n *Network) Host(b int) string {
	var x, y, z int
	_, _ = fmt.Sscanf(n.Subnet, "%d.%d.%d.0/24", &x, &y, &z)
	return fmt.Sprintf("%d.%d.%d.%d", x, y, z, b)
}

type Harness struct {
	t          *testing.T
	mu         sync.Mutex
	ctx        context.Context
	Networks   []*Network
	Nodes      map[string]testcontainers.Container
	LogManager *LogManager
	RootDir    string
}

func findRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	rootDir := wd
	for {
		if _, err := os.Stat(filepath.Join(rootDir, "go.mod")); err == nil {
			return rootDir, nil
		}
		parent := filepath.Dir(rootDir)
		if parent == rootDir {
			return "", fmt.Errorf("could not find project root")
		}
		rootDir = parent
	}
}

func NewHarness(t *testing.T) *Harness {
	rootDir, err := findRoot()
	if err != nil {
		t.Fatal(err)
	}
	h := &Harness{
		t:          t,
		ctx:        context.Background(),
		Nodes:      make(map[string]testcontainers.Container),
		LogManager: NewLogManager(),
		RootDir:    rootDir,
	}
	t.Cleanup(h.Cleanup)
	return h
}

// NewNetwork creates a bridge network on a fresh subnet.
func (h *Harness) NewNetwork() *Network {
	subnet, gateway := GlobalSubnetAllocator.Allocate()
	h.t.Logf("Allocated subnet: %s, gateway: %s", subnet, gateway)
	n, err := tcnetwork.New(h.ctx,
		tcnetwork.WithAttachable(),
		tcnetwork.WithDriver("bridge"),
		tcnetwork.WithIPAM(&network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{
				{
					Subnet:  subnet,
					Gateway: gateway,
				},
			},
		}))
	if err != nil {
		h.t.Fatal(err)
	}
	net := &Network{DockerNetwork: n, Subnet: subnet, Gateway: gateway}
	h.mu.Lock()
	h.Networks = append(h.Networks, net)
	h.mu.Unlock()
	return net
}

// Attachment places a node on a network at a fixed address.
type Attachment struct {
	Network *Network
	IP      string
}

// StartNode runs strand in a container attached to the given networks with the config at cfgPath.
func (h *Harness) StartNode(name string, cfgPath string, attachments ...Attachment) testcontainers.Container {
	h.t.Logf("Starting node %s", name)
	networks := make([]string, 0, len(attachments))
	aliases := make(map[string][]string)
	ips := make(map[string]string)
	for _, a := range attachments {
		networks = append(networks, a.Network.Name)
		aliases[a.Network.Name] = []string{name}
		ips[a.Network.Name] = a.IP
	}
	req := testcontainers.ContainerRequest{
		Image:          ImageName,
		Networks:       networks,
		NetworkAliases: aliases,
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      cfgPath,
				ContainerFilePath: ConfigPath,
				FileMode:          0644,
			},
		},
		WaitingFor: wait.ForLog("strand has been initialized").WithStartupTimeout(30 * time.Second),
		HostConfigModifier: func(hostConfig *container.HostConfig) {
			hostConfig.Privileged = true
			hostConfig.CapAdd = []string{"NET_ADMIN", "NET_RAW"}
		},
		EndpointSettingsModifier: func(m map[string]*network.EndpointSettings) {
			for netName, ip := range ips {
				if s, ok := m[netName]; ok && ip != "" {
					s.IPAMConfig = &network.EndpointIPAMConfig{
						IPv4Address: ip,
					}
				}
			}
		},
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{
				&UnifiedLogConsumer{Node: name, Manager: h.LogManager},
			},
		},
		Name: h.t.Name() + "-" + name,
	}
	cont, err := testcontainers.GenericContainer(h.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		h.t.Fatalf("failed to start container %s: %v", name, err)
	}
	h.mu.Lock()
	h.Nodes[name] = cont
	h.mu.Unlock()
	return cont
}

// WaitForMatch blocks until node logs a line matching the regular expression pattern.
func (h *Harness) WaitForMatch(nodeName string, pattern string) {
	sub, err := h.LogManager.Subscribe(nodeName, pattern)
	if err != nil {
		h.t.Fatalf("failed to subscribe: %v", err)
	}
	defer h.LogManager.Unsubscribe(sub)

	select {
	case <-sub.MatchCh:
	case <-time.After(WaitTimeout):
		h.t.Fatalf("timed out waiting for pattern %q in node %s", pattern, nodeName)
	}
}

func (h *Harness) Exec(nodeName string, cmd []string) (string, string, error) {
	h.mu.Lock()
	c, ok := h.Nodes[nodeName]
	h.mu.Unlock()
	if !ok {
		return "", "", fmt.Errorf("node %s not found", nodeName)
	}

	code, r, err := c.Exec(h.ctx, cmd)
	if err != nil {
		return "", "", err
	}
	stdoutBuf := new(bytes.Buffer)
	stderrBuf := new(bytes.Buffer)
	_, err = stdcopy.StdCopy(stdoutBuf, stderrBuf, r)
	if err != nil {
		return "", "", fmt.Errorf("failed to copy output: %w", err)
	}
	stdout := StripAnsi(stdoutBuf.String())
	stderr := StripAnsi(stderrBuf.String())
	if code != 0 {
		return stdout, stderr, fmt.Errorf("command exited with code %d: %s\nStderr: %s", code, stdout, stderr)
	}
	return stdout, stderr, nil
}

func (h *Harness) PrintLogs(nodeName string) {
	h.mu.Lock()
	c, ok := h.Nodes[nodeName]
	h.mu.Unlock()
	if !ok {
		h.t.Logf("node %s not found for logging", nodeName)
		return
	}
	r, err := c.Logs(h.ctx)
	if err != nil {
		h.t.Logf("failed to get logs for %s: %v", nodeName, err)
		return
	}
	buf := new(bytes.Buffer)
	_, _ = io.Copy(buf, r)
	h.t.Logf("Logs for %s:\n%s", nodeName, buf.String())
}

func (h *Harness) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, c := range h.Nodes {
		if err := c.Terminate(h.ctx); err != nil {
			h.t.Logf("failed to terminate container %s: %v", name, err)
		}
	}
	for _, n := range h.Networks {
		if err := n.Remove(context.Background()); err != nil {
			h.t.Logf("failed to remove network %s: %v", n.Name, err)
		}
	}
}

// SetupTestDir creates a directory for the current test run
func (h *Harness) SetupTestDir() string {
	dir := filepath.Join(h.RootDir, "e2e", "runs", h.t.Name())
	_ = os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		h.t.Fatal(err)
	}
	return dir
}

// WriteConfig writes cfg into dir and returns its path.
func (h *Harness) WriteConfig(dir, filename string, cfg state.Config) string {
	path := filepath.Join(dir, filename)
	if err := state.WriteConfig(path, &cfg); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// SimpleConfig returns a node config tuned for fast convergence in tests.
func SimpleConfig(name string) state.Config {
	cfg := state.DefaultConfig()
	cfg.Name = name
	cfg.AdvertiseInterval = 2 * time.Second
	cfg.Probe.Timeout = 500 * time.Millisecond
	cfg.Interfaces.Include = []string{"eth*"}
	return cfg
}
