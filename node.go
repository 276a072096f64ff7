package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Role is the function of a host within the cluster.
type Role string

const (
	Master    Role = "master"         // Master is a DC/OS master node.
	PrivAgent Role = "priv_agent"     // PrivAgent is a DC/OS private agent node.
	PubAgent  Role = "pub_agent"      // PubAgent is a DC/OS public agent node.
	Kubelet   Role = "Konvoy kubelet" // Kubelet is a Konvoy node.
)

// Node is a host found within an extracted bundle.
type Node struct {
	IP   string // IP is the address of the host, or "unknown" when the bundle does not say.
	Role Role   // Role is the function of the host.
	Dir  string // Dir is the directory holding the files collected from the host.
}

// Nodes returns the hosts found within the extracted bundle dir of the bundle type.
// The nodes are sorted by role and then IP.
// Service bundles have no nodes and return nil.
// The [ErrNoNodes] error is returned when a cluster bundle has no hosts.
func Nodes(dir string, t Type) ([]Node, error) {
	var nodes []Node
	var err error
	switch t {
	case DCOSDiag:
		nodes, err = dcosNodes(dir)
	case DCOSOneliner:
		nodes = onelinerNodes(dir)
	case KonvoyDiag:
		nodes, err = konvoyNodes(dir)
	case ServiceDiag:
		return nil, nil
	default:
		return nil, fmt.Errorf("nodes %w: %s", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("nodes %w", err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoNodes, dir)
	}
	slices.SortStableFunc(nodes, func(a, b Node) int {
		if c := strings.Compare(string(a.Role), string(b.Role)); c != 0 {
			return c
		}
		return strings.Compare(a.IP, b.IP)
	})
	return nodes, nil
}

// dcosNodes uses the host directories of a DC/OS diagnostic bundle,
// which are named <ip>_master, <ip>_agent or <ip>_agent_public.
func dcosNodes(dir string) ([]Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	suffixes := []struct {
		suffix string
		role   Role
	}{
		{"_master", Master},
		{"_agent_public", PubAgent},
		{"_agent", PrivAgent},
	}
	var nodes []Node
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, s := range suffixes {
			if !strings.HasSuffix(name, s.suffix) {
				continue
			}
			nodes = append(nodes, Node{
				IP:   strings.TrimSuffix(name, s.suffix),
				Role: s.role,
				Dir:  filepath.Join(dir, name),
			})
			break
		}
	}
	return nodes, nil
}

// onelinerNodes returns the single host of a oneliner bundle,
// with the role determined by the Mesos log that was collected.
func onelinerNodes(dir string) []Node {
	logs := []struct {
		name string
		role Role
	}{
		{"dcos-mesos-master.service.log", Master},
		{"dcos-mesos-slave.service.log", PrivAgent},
		{"dcos-mesos-slave-public.service.log", PubAgent},
	}
	for _, l := range logs {
		if _, err := os.Stat(filepath.Join(dir, l.name)); err == nil {
			return []Node{{IP: "unknown", Role: l.role, Dir: dir}}
		}
	}
	return nil
}

// ipv4 matches dotted quad names, leading zeros included.
var ipv4 = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// konvoyNodes uses the IPv4 named directories within the bundles directory.
func konvoyNodes(dir string) ([]Node, error) {
	root := filepath.Join(dir, konvoyDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var nodes []Node
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !ipv4.MatchString(entry.Name()) {
			continue
		}
		nodes = append(nodes, Node{
			IP:   entry.Name(),
			Role: Kubelet,
			Dir:  filepath.Join(root, entry.Name()),
		})
	}
	return nodes, nil
}
