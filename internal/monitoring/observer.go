package monitoring

import "time"

// UpstreamObserver 外部服务调用观察者，适配器通过它上报调用结果
type UpstreamObserver interface {
	ObserveUpstream(service, operation string, start time.Time, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveUpstream(string, string, time.Time, error) {}

// NopObserver 不记录任何指标的观察者
var NopObserver UpstreamObserver = nopObserver{}

// ObserverOrNop 在 m 为 nil 时返回 NopObserver
func ObserverOrNop(m *Metrics) UpstreamObserver {
	if m == nil {
		return NopObserver
	}
	return m
}
