package triage

import (
	"github.com/hupe1980/voicemesh/agent"
	"github.com/hupe1980/voicemesh/core"
	"github.com/hupe1980/voicemesh/internal/util"
)

// Editor flow categories.
const (
	CategoryChildrensBook = "childrens_book"
	CategoryNovel         = "novel"
)

// Editor flow classification tools.
const (
	ToolClassifyChildrensBook = "classify_childrens_book"
	ToolClassifyNovel         = "classify_novel"
)

const editorCommonInstructions = "You are a helpful assistant for a fiction publishing house. " +
	"Authors call to pitch manuscripts. Be warm, encouraging and concise."

const editorLeadInstructions = editorCommonInstructions + " You are the lead editor and the first contact point. " +
	"Greet the caller and ask everyone on the call for their name and what they are writing. " +
	"Call user_introduction once for every person who introduces themselves. " +
	"When you know what kind of manuscript it is, call classify_childrens_book for picture books and " +
	"stories for young readers, or classify_novel for novels. " +
	"If the caller is not interested in working with an editor, call user_declines_transfer immediately."

const editorSpecialistInstructions = editorCommonInstructions + " You are the {{.Specialty}} editor. " +
	"Discuss the manuscript with the authors, ask about audience, length and status, and give concrete advice. " +
	"Record additional details with gather_user_info and call conversation_finished when the authors are done.\n\n" +
	"Authors and notes:\n{{.State.Summary}}"

// EditorTransferAnnouncement is spoken by the specialist editor when it
// takes over.
const EditorTransferAnnouncement = "Let me bring in the right editor for your manuscript."

// NewEditorLead builds the front-door agent of the editor flow. It collects
// the authors on the call and classifies the manuscript, which hands the call
// to the matching specialist editor.
func NewEditorLead(optFns ...func(o *Options)) *agent.VoiceAgent[State] {
	opts := buildOptions(optFns)

	childrens := specialistFactory(opts, "children's book", func(*State) core.Agent[State] {
		return NewEditorSpecialist("children's book", opts)
	})

	novel := specialistFactory(opts, "novel", func(*State) core.Agent[State] {
		return NewEditorSpecialist("novel", opts)
	})

	return agent.New("lead editor",
		agent.WithDescription[State]("Collects authors and routes manuscripts to a specialist editor"),
		agent.WithInstruction(agent.NewInstructionFromText[State](editorLeadInstructions)),
		agent.WithAllowInterruptions[State](false),
		agent.WithTools(
			IntroduceTool(),
			ClassifyTool(ToolClassifyChildrensBook, "Called when the manuscript is a children's book.", CategoryChildrensBook, childrens, EditorTransferAnnouncement),
			ClassifyTool(ToolClassifyNovel, "Called when the manuscript is a novel.", CategoryNovel, novel, EditorTransferAnnouncement),
			DeclineTool(),
		),
	)
}

// NewEditorSpecialist builds a specialist editor for specialty.
func NewEditorSpecialist(specialty string, opts Options) *agent.VoiceAgent[State] {
	return agent.New(specialty+" editor",
		agent.WithDescription[State]("Advises authors on their "+specialty+" manuscript"),
		agent.WithInstruction(specialistInstruction(editorSpecialistInstructions, specialty)),
		agent.WithAllowInterruptions[State](false),
		specialistVoice(opts),
		agent.WithTools(
			GatherInfoTool(),
			FinishTool(),
		),
	)
}

func renderSpecialist(tmpl, specialty string, state *State) (string, error) {
	if state == nil {
		state = &State{}
	}

	return util.RenderTemplate(tmpl, struct {
		Specialty string
		State     *State
	}{specialty, state})
}
