package nodes

// coordinatorPrompt asks for a short analysis of the incoming request.
const coordinatorPrompt = `You are the coordinator of a team of specialist agents.
Analyze the user's latest request before it is planned.

User request:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "intent": "one short phrase describing what the user wants",
  "complexity": "simple|moderate|complex|very_complex",
  "summary": "one sentence restating the request"
}`

// plannerPrompt is the prompt template for plan generation.
const plannerPrompt = `Break this user request into steps, assigning each step to exactly one team.

Available teams:
%s
User request:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "goal": "the user's goal in one sentence",
  "complexity": "simple|moderate|complex|very_complex",
  "steps": [
    {
      "id": "step-1",
      "description": "what the team should do",
      "team": "exact team name from the list above",
      "tools": ["tool names the team should use"],
      "depends_on": ["ids of steps that must finish first"]
    }
  ]
}

Guidelines:
- Use ONLY team and tool names from the list above
- Prefer the fewest steps that fully answer the request
- Use an empty array [] for depends_on if a step has no dependencies`

// replannerPrompt asks for a corrected plan given what went wrong.
const replannerPrompt = `A previous plan for this request could not be used. Produce a new plan.

Available teams:
%s
User request:
%s

Previous plan:
%s
What went wrong:
%s

%s

Return ONLY a JSON object with the same structure as before (no other text):
{
  "goal": "...",
  "complexity": "simple|moderate|complex|very_complex",
  "steps": [{"id": "step-1", "description": "...", "team": "...", "tools": [], "depends_on": []}]
}`

const reviseGuidance = `Keep the parts of the previous plan that were sound and fix only the problems listed.`

const simplifyGuidance = `Earlier attempts also failed. Use as few steps as possible and only teams from the list.`

// generatorPrompt is the prompt template for the final answer.
const generatorPrompt = `Write the final answer to the user's request using the work the teams produced.

User request:
%s

Plan:
%s
Team results:
%s
Answer the user directly. Do not mention teams, plans or internal steps.`
