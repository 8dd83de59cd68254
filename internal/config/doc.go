// Package config 提供 perf-gate 的配置管理功能。
// 应用配置支持从 YAML 文件、环境变量和命令行参数加载，
// 优先级顺序为：默认值 < YAML 文件 < 环境变量 < 命令行参数。
// 阈值配置是独立的 YAML 文件，按场景声明门禁规则。
package config
