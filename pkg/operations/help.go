// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package operations

// Usage is printed by the "?" command
const Usage = `
Enter commands and press Enter. Case does not matter.
Arguments for one address are separated by ',', commands by '#'.

Command            | Action
-------------------+------------------------------------------------------------
?                  | This help
E[MERG], STOP      | Emergency stop, all locos
                   |
L?                 | Scan the loco on the programming track (one decoder only)
L{a,la,fs,name}    | Control loco: a    = decoder address
                   |               la   = long address (0 / 1)
                   |               fs   = speed steps (14 / 28 / 128)
                   |               name = display name
                   |
V{fff}             | Active loco forward at speed {fff}
R{fff}             | Active loco reverse at speed {fff}
H                  | Halt active loco
                   |
G{a}               | Print data of loco {a} (speed, direction, functions)
D                  | List locos
D{a}               | Remove loco {a}, no more packets are sent to it
                   |
F{nn}              | Toggle function {nn = 0..68}
F                  | Show function states
                   |
W{a},{d}           | Turnout {a} direction {d}: 0 straight, else diverging
W{a}               | Toggle turnout {a}
W                  | List accessories
S{a},{d}           | Signal {a} aspect {d}
                   |
QUIT, Q            | Shut everything down and quit
RESET              | Put the layout into its initial state
-------------------+------------------------------------------------------------
Programming on main:
P{a,cv,value}      | Multifunction decoder {a}: write {value} to {cv}
A{a,cv,value}      | Accessory decoder {a}: write {value} to {cv}
-------------------+------------------------------------------------------------
`
