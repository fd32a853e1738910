package model

import "podsync/internal/engine"

// builtInNetworks 内置网络名称
var builtInNetworks = map[string]bool{
	"bridge": true,
	"host":   true,
	"none":   true,
	"podman": true,
}

// Network 网络实体
type Network struct {
	base[engine.NetworkData]
}

func newNetwork(id string, data engine.NetworkData) *Network {
	return &Network{base: newBase(id, data)}
}

// Name 网络名称
func (n *Network) Name() string {
	return n.Data().Name
}

// Driver 网络驱动
func (n *Network) Driver() string {
	return n.Data().Driver
}

// Internal 是否为内部网络
func (n *Network) Internal() bool {
	return n.Data().Internal
}

// BuiltIn 是否为运行时自带的网络
func (n *Network) BuiltIn() bool {
	return builtInNetworks[n.Name()]
}

// NetworkList 网络列表
type NetworkList struct {
	*List[engine.NetworkData, *Network]
}

// NewNetworkList 创建网络列表
func NewNetworkList(source engine.Source[engine.NetworkData], opts ...Option) *NetworkList {
	return &NetworkList{List: newList(engine.KindNetwork, source, newNetwork, opts...)}
}
