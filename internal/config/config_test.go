package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigWithCorrectMapSyntax 验证当 YAML 语法正确时，配置能否被成功加载
func TestLoadConfigWithCorrectMapSyntax(t *testing.T) {
	correctYAMLContent := `
openai:
  api_url: "https://example.com/v1/chat/completions"
  model: "gpt-4o-mini"
  task_models:
    info_extraction: "gpt-4o-mini"
    fit_scoring: "gpt-4o"
pipeline:
  reanalyze_delay: "2s"
`
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(correctYAMLContent), 0644)
	require.NoError(t, err, "无法写入临时配置文件")

	config, err := LoadConfig(configPath)

	require.NoError(t, err, "加载具有正确语法的配置不应返回错误")
	require.NotNil(t, config, "配置对象不应为 nil")

	expectedTaskModels := map[string]string{
		"info_extraction": "gpt-4o-mini",
		"fit_scoring":     "gpt-4o",
	}
	assert.Equal(t, expectedTaskModels, config.OpenAI.TaskModels, "OpenAI.TaskModels 的值与预期不符")
	assert.Equal(t, "2s", config.Pipeline.ReanalyzeDelay, "Pipeline.ReanalyzeDelay 的值与预期不符")

	// 缺省字段应被默认值填充
	assert.Equal(t, ":8080", config.Server.Address)
	assert.Equal(t, "30m", config.Pipeline.StuckThreshold)
}

// TestLoadConfigWithIncorrectMapSyntax 验证当 YAML 缩进错误时，map 字段无法被正确解析
func TestLoadConfigWithIncorrectMapSyntax(t *testing.T) {
	incorrectYAMLContent := `
openai:
  model: "gpt-4o-mini"
  task_models: # map类型
  info_extraction: "gpt-4o-mini"
  fit_scoring: "gpt-4o"
`
	tmpDir, err := os.MkdirTemp("", "config-test-incorrect")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(incorrectYAMLContent), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)

	// go-yaml/v3 在解析这种格式时不会报错，但会将 task_models 解析为空 map
	require.NoError(t, err, "加载语法错误的配置也不应立即报错")
	require.NotNil(t, config, "配置对象不应为 nil")

	assert.Empty(t, config.OpenAI.TaskModels, "由于缩进错误，TaskModels map 应该是空的")
}

// TestGetModelForTask 验证任务专用模型的回退逻辑
func TestGetModelForTask(t *testing.T) {
	cfg := &Config{}
	cfg.OpenAI.Model = "gpt-4o-mini"
	cfg.OpenAI.TaskModels = map[string]string{"fit_scoring": "gpt-4o"}

	assert.Equal(t, "gpt-4o", cfg.GetModelForTask("fit_scoring"))
	assert.Equal(t, "gpt-4o-mini", cfg.GetModelForTask("info_extraction"))
}

// TestGetDuration 验证配置时长解析的回退行为
func TestGetDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, GetDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("not-a-duration", time.Minute))
}
