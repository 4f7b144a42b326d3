package agent

import (
	"strings"

	"chemagent/internal/tools"
)

const systemPrefix = "You are an expert chemist. Your task is to use the provided tools and respond to the input question to the best of your ability.\n\n"

const formatInstructions = `You must respond in one of two specific formats in every step:

1. When calling a tool:
    Thought: [Your reasoning for the next step]
    Tool: [Exact name of the tool to use, must be one from the provided list: {tool_names}]
    Tool Input: [Specific input for the selected tool. You must add "<END_INPUT>" at the end of the input to indicate the end position.]
   Then you will be provided with the tool output.
2. When providing the final answer after obtaining all necessary information with tools:
    Thought: [Conclusion of the gathered information and reasoning for the final answer]
    Answer: [Your conclusion based on gathered information and comprehensive response to the original question]

Guidelines:
- You should call tools to solve the problem, especially when you are not sure about certain things and when tools can help.
` + aiExpertGuideline + `- Only provide the final answer after you have gathered all necessary information using tools.
- Always use the exact format specified, including the colons after "Thought", "Tool", "Tool Input", and "Answer". Do not use any other format or include any additional text outside these structures.
- You can only call one tool at a time. Once you have output "Tool" and "Tool Input" for a tool, please stop generating text and wait for the tool output.


The provided tools:

{tool_strings}


Use the above tools to respond to the user's question.
`

const aiExpertGuideline = "- If no other tools are suitable, use the " + tools.AiExpert + " tool to ask questions and obtain analysis.\n"

const questionTemplate = "Question: {input}\n\n"

const rephraseTemplate = `For this task, you'll act as a scientific assistant. I'll give you a question along with a draft solution. The draft solution contains all the accurate information needed to answer the question. Your job is to write a complete, final answer to the question by using and concluding the information from the draft solution. Make sure your response includes all necessary information and reasoning to fully address the original question.

Question: {question}

Solution draft:
{agent_ans}

{format_requirement}`

const rephrasePrefix = "Certainly. Here's the final answer to the question based on the draft solution:"

// instructionsFor drops the AiExpert guideline when the expert is not
// equipped or is the only tool.
func instructionsFor(names []string) string {
	hasExpert := false
	for _, name := range names {
		if name == tools.AiExpert {
			hasExpert = true
			break
		}
	}
	if !hasExpert || len(names) == 1 {
		return strings.Replace(formatInstructions, aiExpertGuideline, "", 1)
	}
	return formatInstructions
}

// buildSystemPrompt renders the system turn for the equipped tools.
func buildSystemPrompt(names []string, catalog string) string {
	r := strings.NewReplacer(
		"{tool_names}", "{"+strings.Join(names, ", ")+"}",
		"{tool_strings}", catalog,
	)
	return systemPrefix + r.Replace(instructionsFor(names))
}

func buildQuestion(request string) string {
	return strings.Replace(questionTemplate, "{input}", request, 1)
}

func buildRephrasePrompt(question, draft, format string) string {
	requirement := ""
	if format != "" {
		requirement = "Format requirement: " + format
	}
	r := strings.NewReplacer(
		"{question}", question,
		"{agent_ans}", draft,
		"{format_requirement}", requirement,
	)
	return r.Replace(rephraseTemplate)
}
