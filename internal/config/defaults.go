package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "auto")
	viper.SetDefault("log.file", "")

	// Storage 配置
	viper.SetDefault("storage.enabled", true)
	viper.SetDefault("storage.path", "")

	// Model 配置
	viper.SetDefault("model.endpoint", "ws://127.0.0.1:8765/v1/eval")
	viper.SetDefault("model.timeout", 2*time.Minute)
	viper.SetDefault("model.context_size", 0)

	// Whisper 配置
	viper.SetDefault("whisper.endpoint", "http://127.0.0.1:8080")
	viper.SetDefault("whisper.language", "en")
	viper.SetDefault("whisper.translate", false)
	viper.SetDefault("whisper.max_tokens", 32)
	viper.SetDefault("whisper.audio_ctx", 0)
	viper.SetDefault("whisper.timeout", 30*time.Second)

	// Audio 配置
	viper.SetDefault("audio.capture_command", []string{})
	viper.SetDefault("audio.sample_rate", 16000)
	viper.SetDefault("audio.buffer_ms", 30000)
	viper.SetDefault("audio.voice_ms", 10000)
	viper.SetDefault("audio.window_ms", 2000)
	viper.SetDefault("audio.last_ms", 1250)
	viper.SetDefault("audio.vad_thold", 0.6)
	viper.SetDefault("audio.freq_thold", 100.0)
	viper.SetDefault("audio.print_energy", false)
	viper.SetDefault("audio.poll_interval", 100*time.Millisecond)

	// Dialogue 配置
	viper.SetDefault("dialogue.person", "Georgi")
	viper.SetDefault("dialogue.bot_name", "LLaMA")
	viper.SetDefault("dialogue.chat_symbol", ":")
	viper.SetDefault("dialogue.prompt_file", "")
	viper.SetDefault("dialogue.session_path", "")
	viper.SetDefault("dialogue.compression", "zstd")
	viper.SetDefault("dialogue.n_prev", 64)
	viper.SetDefault("dialogue.max_tokens", 0)
	viper.SetDefault("dialogue.verbose_prompt", false)
	viper.SetDefault("dialogue.antiprompts", []string{})

	// Sampling 配置
	viper.SetDefault("sampling.top_k", 5)
	viper.SetDefault("sampling.top_p", 0.80)
	viper.SetDefault("sampling.temperature", 0.30)
	viper.SetDefault("sampling.repeat_penalty", 1.1764)
	viper.SetDefault("sampling.repeat_last_n", 256)
	viper.SetDefault("sampling.frequency_penalty", 0.0)
	viper.SetDefault("sampling.presence_penalty", 0.0)
	viper.SetDefault("sampling.penalize_nl", false)
	viper.SetDefault("sampling.eos_logit", 0.0)
	viper.SetDefault("sampling.seed", 1)

	// Speech 配置
	viper.SetDefault("speech.enabled", true)
	viper.SetDefault("speech.command", "./speak")
	viper.SetDefault("speech.voice_id", 2)
	viper.SetDefault("speech.timeout", time.Minute)
}
