// =============================================================================
// 文件: internal/receiver/destination.go
// 描述: UDP destination - 一个绑定端点的地址描述
// =============================================================================
package receiver

import (
	"fmt"
	"net"
	"strings"
)

const udpScheme = "udp://"

// UdpDestination 一个 destination: 本地绑定地址 + 远端数据地址 + 组播标记
//
// 不可变; CanonicalForm 作为 destination 注册表的键。
type UdpDestination struct {
	uri        string
	remoteData *net.UDPAddr
	localData  *net.UDPAddr
	multicast  bool
}

// ParseDestination 解析 udp://host:port 形式的 destination URI
func ParseDestination(uri string) (*UdpDestination, error) {
	if !strings.HasPrefix(uri, udpScheme) {
		return nil, fmt.Errorf("destination 必须以 %s 开头: %q", udpScheme, uri)
	}

	hostPort := uri[len(udpScheme):]
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("destination 地址解析失败 %q: %w", uri, err)
	}
	if addr.Port == 0 {
		return nil, fmt.Errorf("destination 必须指定端口: %q", uri)
	}

	return &UdpDestination{
		uri:        uri,
		remoteData: addr,
		localData:  addr,
		multicast:  addr.IP.IsMulticast(),
	}, nil
}

// CanonicalForm 规范形式, 用作注册表键
func (d *UdpDestination) CanonicalForm() string {
	return udpScheme + d.remoteData.String()
}

// RemoteData 远端数据地址
func (d *UdpDestination) RemoteData() *net.UDPAddr {
	return d.remoteData
}

// LocalData 本地绑定地址
func (d *UdpDestination) LocalData() *net.UDPAddr {
	return d.localData
}

// IsMulticast 是否组播 destination
func (d *UdpDestination) IsMulticast() bool {
	return d.multicast
}

func (d *UdpDestination) String() string {
	return d.CanonicalForm()
}
