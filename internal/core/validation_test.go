package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-manager/internal/plugin"
	"acme-manager/internal/renewal"
	"acme-manager/internal/storage"
)

func TestValidationFreshInstancePerIdentifier(t *testing.T) {
	// 插件不声明复用能力时每个标识符单独建实例，
	// Commit和CleanUp按实例各执行一次
	h := newHarnessWith(t, 5, plugin.ParallelNone, nil)
	r := h.newRenewal("串行", "one.example.com", "two.example.com")

	result := h.run(r, renewal.RunUnattended)

	require.True(t, result.Success, "errors: %v", result.ErrorMessages)
	assert.ElementsMatch(t, []string{"one.example.com", "two.example.com"}, h.valCounters.prepared)
	assert.Equal(t, 2, h.valCounters.commits)
	assert.Equal(t, 2, h.valCounters.cleanups)
}

func TestValidationPrepareFailureSkipsCommit(t *testing.T) {
	h := newHarnessWith(t, 5, plugin.ParallelNone, nil)
	h.valCounters.failPrepare["bad.example.com"] = true
	r := h.newRenewal("准备失败", "bad.example.com")

	result := h.run(r, renewal.RunUnattended)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"bad.example.com"}, h.valCounters.prepared)
	assert.Zero(t, h.valCounters.commits, "准备失败后不应提交")
	assert.Equal(t, 1, h.valCounters.cleanups, "失败路径也必须清理")
	// 未应答的授权留在pending，必须主动停用
	assert.Len(t, h.client.deactivatedAuthzs, 1)
	assert.Zero(t, h.client.finalizeCalls)
}

func TestValidationParallelPrepareFailuresAllRecorded(t *testing.T) {
	// 同一订单多个标识符并行准备且全部失败时，
	// 每个失败都要落到共享的订单结果里
	h := newHarness(t, 5)
	domains := []string{"p1.example.com", "p2.example.com", "p3.example.com", "p4.example.com"}
	for _, d := range domains {
		h.valCounters.failPrepare[d] = true
	}
	r := h.newRenewal("并行失败", domains...)

	result := h.run(r, renewal.RunUnattended)

	assert.False(t, result.Success)
	assert.ElementsMatch(t, domains, h.valCounters.prepared)
	require.Len(t, result.OrderResults, 1)

	var prepareFailures int
	for _, msg := range result.OrderResults[0].ErrorMessages {
		if msg.Fatal {
			prepareFailures++
		}
	}
	assert.Equal(t, len(domains), prepareFailures)
	assert.Zero(t, h.valCounters.commits)
	assert.Equal(t, 1, h.valCounters.cleanups)
}

func TestValidationAnswerFailureStillCleansUp(t *testing.T) {
	h := newHarness(t, 5)
	h.client.failIdentifiers["down.example.com"] = true
	r := h.newRenewal("应答失败", "down.example.com", "up.example.com")

	result := h.run(r, renewal.RunUnattended)

	assert.False(t, result.Success)
	require.Len(t, result.OrderResults, 1)
	assert.True(t, result.OrderResults[0].HasFatalError())
	assert.Equal(t, 1, h.valCounters.cleanups)
	assert.Zero(t, h.client.finalizeCalls, "验证失败的订单不应走到签发")
}

func TestValidationGlobalOverride(t *testing.T) {
	override := newValidationCounters()
	globals := []*storage.GlobalValidationOption{{
		Pattern:    "*.example.com",
		Validation: &renewal.ValidationOptions{Plugin: "override"},
	}}

	h := newHarnessWith(t, 5, plugin.ParallelPrepare|plugin.ParallelAnswer|plugin.ParallelReuse, globals)
	h.registry.RegisterValidation("override", override.factory(plugin.ParallelPrepare|plugin.ParallelAnswer|plugin.ParallelReuse))
	r := h.newRenewal("覆盖", "www.example.com")

	result := h.run(r, renewal.RunUnattended)

	require.True(t, result.Success, "errors: %v", result.ErrorMessages)
	assert.Equal(t, []string{"www.example.com"}, override.prepared, "命中全局覆盖的标识符走覆盖插件")
	assert.Empty(t, h.valCounters.prepared, "任务自身配置不应被使用")
}

func TestValidationGlobalOverrideFallsBack(t *testing.T) {
	// 覆盖插件没注册时回退到任务自身的配置
	globals := []*storage.GlobalValidationOption{{
		Pattern:    "*.example.com",
		Validation: &renewal.ValidationOptions{Plugin: "nonexistent"},
	}}

	h := newHarnessWith(t, 5, plugin.ParallelPrepare|plugin.ParallelAnswer|plugin.ParallelReuse, globals)
	r := h.newRenewal("回退", "www.example.com")

	result := h.run(r, renewal.RunUnattended)

	require.True(t, result.Success, "errors: %v", result.ErrorMessages)
	assert.Equal(t, []string{"www.example.com"}, h.valCounters.prepared)
}
