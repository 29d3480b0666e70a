package triage

import (
	"github.com/hupe1980/voicemesh/agent"
	"github.com/hupe1980/voicemesh/core"
)

const salesCommonInstructions = "You are a helpful virtual assistant for a technology company. Your primary goal " +
	"is to determine if the user wants to speak with a sales agent. You should ask " +
	"if they want to be transferred to our sales team. Be polite and professional at all times."

const salesLeadInstructions = salesCommonInstructions + " You are the initial contact point. " +
	"Your job is to greet the user, ask if they want to be transferred to our sales agent, " +
	"and then transfer them if they say yes. If the user tells you their name or what they are looking for, " +
	"call user_introduction. If they say no, you MUST call user_declines_transfer. " +
	"Be very attentive to any negative responses like 'no', 'nope', 'not interested', etc. - these all " +
	"indicate the user is declining the transfer and you should call user_declines_transfer immediately. " +
	"If the user says yes, call user_wants_transfer. " +
	"Start the conversation with a friendly greeting and immediately ask if they want " +
	"to speak with a sales agent. Use a warm, approachable tone. " +
	"Never jump into other conversations than the one specifically about transferring the user to a sales agent."

const salesSpecialistInstructions = salesCommonInstructions + " You are a {{.Specialty}} agent. " +
	"You are knowledgeable about our products and services. Your goal is to help " +
	"the user with their sales-related inquiries. Be professional, helpful, and " +
	"try to address their needs efficiently. If they have questions about " +
	"products, pricing, or purchasing, provide helpful information. " +
	"Record the user's details with gather_user_info, categorize the request with set_query_type " +
	"and call conversation_finished once the user has no further questions.\n\n" +
	"What we know so far:\n{{.State.Summary}}"

// SalesTransferAnnouncement is spoken by the sales specialist when it takes over.
const SalesTransferAnnouncement = "Great! I'll transfer you to our sales agent now."

// NewSalesLead builds the front-door agent of the sales flow. It greets the
// caller, asks whether they want to talk to sales and either transfers to
// the sales specialist or ends the call.
func NewSalesLead(optFns ...func(o *Options)) *agent.VoiceAgent[State] {
	opts := buildOptions(optFns)

	build := specialistFactory(opts, "sales", func(*State) core.Agent[State] {
		return NewSalesSpecialist("sales", opts)
	})

	return agent.New("lead",
		agent.WithDescription[State]("Greets the caller and offers a transfer to sales"),
		agent.WithInstruction(agent.NewInstructionFromText[State](salesLeadInstructions)),
		agent.WithAllowInterruptions[State](false),
		agent.WithTools(
			IntroduceTool(),
			TransferTool(ToolWantsTransfer, "Called when the user has indicated they want to be transferred to a sales agent.", build, SalesTransferAnnouncement),
			DeclineTool(),
		),
	)
}

// NewSalesSpecialist builds the specialist of the sales flow.
func NewSalesSpecialist(specialty string, opts Options) *agent.VoiceAgent[State] {
	return agent.New(specialty,
		agent.WithDescription[State]("Answers product, pricing and purchasing questions"),
		agent.WithInstruction(specialistInstruction(salesSpecialistInstructions, specialty)),
		agent.WithAllowInterruptions[State](false),
		specialistVoice(opts),
		agent.WithTools(
			GatherInfoTool(),
			SetQueryTypeTool(),
			FinishTool(),
		),
	)
}

// specialistInstruction renders tmpl with the specialty and the live state.
func specialistInstruction(tmpl, specialty string) agent.Instruction[State] {
	return agent.NewInstructionFromFunc(func(state *State) (string, error) {
		return renderSpecialist(tmpl, specialty, state)
	})
}
