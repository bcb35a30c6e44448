package mcpserver

// CharacterFormatContract describes the JSON record that save_character
// accepts and get_character returns.
const CharacterFormatContract = `# Character Record Format

Every character is one JSON object. Unknown fields are ignored.

## Fields

` + "```" + `json
{
  "id": "4b0c...",                 // REQUIRED on update; generated when empty
  "name": "Nyx",                   // REQUIRED, 1-120 characters
  "concept": "Street medic",
  "background": "",
  "level": 1,                      // 1-20, defaults to 1
  "attributes": {                  // each -5 to 10
    "phys": 2, "dex": 3, "int": 1, "will": 2, "cha": 1, "emp": 0
  },
  "skills": [
    {"key": "athletics", "label": "Athletics", "rank": 2, "focus": ""}
  ],
  "gear": [
    {"id": "g-1", "name": "Shotgun", "type": "weapon", "tags": [], "notes": ""}
  ],
  "notes": "",
  "createdAt": "2026-03-01T12:00:00Z",
  "updatedAt": "2026-03-01T12:00:00Z",
  "version": 1
}
` + "```" + `

## Rules

1. **attributes** only use the keys phys, dex, int, will, cha and emp.
2. **skills[].rank** is 0-10 and **skills[].label** at most 80 characters.
3. **gear[].id** is required and **gear[].type** is one of weapon, armour,
   item, cyberware, narcotic or hacker_gear.
4. **gear[].tags** is an optional list of strings.
5. **updatedAt** is the version token. Pass the value you last read as
   ` + "`" + `if_match` + "`" + ` to save_character; a newer stored record rejects the write
   and returns the stored record instead.
6. **version** is the schema version and is always 1.
`
