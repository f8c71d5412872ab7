// =============================================================================
// 📦 测试数据工厂 - Agent 档案
// =============================================================================
// 提供助手的五个预置 Agent 档案，用于测试
// =============================================================================
package fixtures

import (
	"testing"

	"github.com/BaSui01/crewcheck/agent/profiles"
)

// Agent IDs
const (
	ExpenseLogger = "expense_logger_agent"
	VoiceParser   = "voice_parser_agent"
	Onboarding    = "onboarding_agent"
	QuoteAgent    = "quote_agent"
	TaskManager   = "task_manager"
)

// =============================================================================
// 🤖 Agent 档案工厂
// =============================================================================

// ExpenseLoggerProfile 返回记账 Agent
func ExpenseLoggerProfile() profiles.AgentProfile {
	return profiles.AgentProfile{
		ID:           ExpenseLogger,
		Role:         "Expense Logger",
		Objective:    "Ensure all user-submitted expenses (text/image) are parsed and logged correctly to the spreadsheet.",
		Persona:      "A diligent assistant focused on logging accurate financial data for users.",
		Capabilities: []string{"spreadsheet", "receipt_ocr", "messaging"},
	}
}

// VoiceParserProfile 返回语音解析 Agent
func VoiceParserProfile() profiles.AgentProfile {
	return profiles.AgentProfile{
		ID:           VoiceParser,
		Role:         "Voice Note Interpreter",
		Objective:    "Transcribe and parse WhatsApp voice notes into structured expense data.",
		Capabilities: []string{"speech_to_text", "spreadsheet", "messaging"},
	}
}

// OnboardingProfile 返回新用户引导 Agent
func OnboardingProfile() profiles.AgentProfile {
	return profiles.AgentProfile{
		ID:           Onboarding,
		Role:         "Onboarding Guide",
		Objective:    "Greet new users and guide them through setting up their first spreadsheet.",
		Capabilities: []string{"spreadsheet", "messaging"},
	}
}

// QuoteProfile 返回报价 Agent
func QuoteProfile() profiles.AgentProfile {
	return profiles.AgentProfile{
		ID:           QuoteAgent,
		Role:         "Quote Generator",
		Objective:    "Receive material quantity inputs and calculate total project quotes.",
		Capabilities: []string{"pricing", "pdf", "messaging"},
	}
}

// TaskManagerProfile 返回任务状态 Agent
func TaskManagerProfile() profiles.AgentProfile {
	return profiles.AgentProfile{
		ID:           TaskManager,
		Role:         "Task Status Manager",
		Objective:    "Track, update, and broadcast progress on active jobs or tasks.",
		Capabilities: []string{"tasks", "messaging", "webhook"},
	}
}

// AllProfiles 返回全部五个 Agent 档案
func AllProfiles() []profiles.AgentProfile {
	return []profiles.AgentProfile{
		ExpenseLoggerProfile(),
		VoiceParserProfile(),
		OnboardingProfile(),
		QuoteProfile(),
		TaskManagerProfile(),
	}
}

// Registry 返回注册了全部档案的 Registry
func Registry(t testing.TB) *profiles.Registry {
	t.Helper()

	r := profiles.NewRegistry(nil)
	for _, p := range AllProfiles() {
		if err := r.Register(p); err != nil {
			t.Fatalf("register %s: %v", p.ID, err)
		}
	}
	return r
}
