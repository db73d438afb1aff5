package service

import (
	"Roger/internal/pkg/audio"
	log "log/slog"
)

// routePolicy 输出路由策略：默认外放；连接了耳机或设备贴近耳朵时不外放；
// 录音默认走听筒，除非明确要求外放
type routePolicy struct {
	proximityNear bool
	// override 显式要求，nil 表示按默认策略
	override *bool
}

func (r *routePolicy) loudspeaker(device audio.Device, recording bool) bool {
	if device.ExternalConnected() || r.proximityNear {
		return false
	}
	if r.override != nil {
		return *r.override
	}
	return !recording
}

func (r *routePolicy) route(device audio.Device, recording bool) audio.Route {
	if device.ExternalConnected() {
		return audio.RouteExternal
	}
	if r.loudspeaker(device, recording) {
		return audio.RouteLoudspeaker
	}
	return audio.RouteReceiver
}

// UsingLoudspeaker 当前是否外放，主队列调用
func (a *AudioService) UsingLoudspeaker() bool {
	return a.usingLoudspeaker
}

// SetProximity 设备贴近/离开耳朵
func (a *AudioService) SetProximity(near bool) {
	a.routes.proximityNear = near
	a.updateRoute()
}

// RequestLoudspeaker 显式指定是否外放，nil 恢复默认策略
func (a *AudioService) RequestLoudspeaker(on *bool) {
	a.routes.override = on
	a.updateRoute()
}

// HandleRouteChange 耳机插拔等系统路由变化
func (a *AudioService) HandleRouteChange() {
	a.updateRoute()
}

func (a *AudioService) updateRoute() {
	recording := a.state.Kind == AudioRecording
	if a.sessionActive {
		if err := a.device.SetRoute(a.routes.route(a.device, recording)); err != nil {
			log.Warn("switch audio route failed", "err", err)
		}
	}
	a.setLoudspeaker(a.routes.loudspeaker(a.device, recording))
}

func (a *AudioService) setLoudspeaker(loud bool) {
	if loud == a.usingLoudspeaker {
		return
	}
	a.usingLoudspeaker = loud
	a.RouteChanged.Emit(loud)
}
